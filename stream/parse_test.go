package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDoneMarker(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{`[DONE]`, true},
		{`[done]`, true},
		{`data: [DONE]`, true},
		{`{"choices":[{"finish_reason":"stop"}]}`, true},
		{`{"choices":[{"finish_reason":"  "}]}`, false},
		{`{"choices":[{"finish_reason":null}]}`, false},
		{`{"choices":[{"delta":{"content":"x"}}]}`, false},
		{`not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDoneMarker(tt.payload))
		})
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		text     string
		finished bool
	}{
		{"delta content", `{"choices":[{"delta":{"content":"a"}}]}`, "a", false},
		{"message content", `{"choices":[{"message":{"content":"b"}}]}`, "b", false},
		{"choice text", `{"choices":[{"text":"c"}]}`, "c", false},
		{"delta wins over text", `{"choices":[{"delta":{"content":"d"},"text":"x"}]}`, "d", false},
		{"top-level content", `{"content":"e","text":"x"}`, "e", false},
		{"top-level text", `{"text":"f"}`, "f", false},
		{"no text", `{"id":"chunk-1"}`, "", false},
		{"finish with text", `{"choices":[{"delta":{"content":"g"},"finish_reason":"length"}]}`, "g", true},
		{"regex content", `{"content":"h\"i", broken`, `h"i`, false},
		{"regex text", `{"text":"j" oops`, "j", false},
		{"non-string content falls back", `{"content":["k"]}`, `{"content":["k"]}`, false},
		{"raw passthrough", `plain words`, "plain words", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, finished := parseEvent(tt.payload)
			assert.Equal(t, tt.text, text)
			assert.Equal(t, tt.finished, finished)
		})
	}
}
