package stream

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

const doneToken = "[DONE]"

var (
	contentField = regexp.MustCompile(`"content"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	textField    = regexp.MustCompile(`"text"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

type textHolder struct {
	Content *string `json:"content"`
}

type choice struct {
	Delta        *textHolder `json:"delta"`
	Message      *textHolder `json:"message"`
	Text         *string     `json:"text"`
	FinishReason *string     `json:"finish_reason"`
}

type event struct {
	Choices []choice `json:"choices"`
	Content *string  `json:"content"`
	Text    *string  `json:"text"`
}

// IsDoneMarker reports whether an event payload ends the stream, either as
// the literal [DONE] token or as JSON carrying a finish_reason.
func IsDoneMarker(payload string) bool {
	payload = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(payload), "data:"))
	if strings.EqualFold(strings.TrimSpace(payload), doneToken) {
		return true
	}
	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	return ev.finished()
}

func isDoneToken(payload string) bool {
	return strings.EqualFold(payload, doneToken)
}

// parseEvent extracts the text carried by one payload and whether the
// payload ends the stream. Payloads that are not JSON objects go through
// the regex fallbacks and finally pass through verbatim.
func parseEvent(payload string) (string, bool) {
	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return fallbackText(payload), false
	}
	return ev.text(), ev.finished()
}

func (ev *event) text() string {
	var b strings.Builder
	found := false
	for _, c := range ev.Choices {
		switch {
		case c.Delta != nil && c.Delta.Content != nil:
			b.WriteString(*c.Delta.Content)
			found = true
		case c.Message != nil && c.Message.Content != nil:
			b.WriteString(*c.Message.Content)
			found = true
		case c.Text != nil:
			b.WriteString(*c.Text)
			found = true
		}
	}
	if found {
		return b.String()
	}
	if ev.Content != nil {
		return *ev.Content
	}
	if ev.Text != nil {
		return *ev.Text
	}
	return ""
}

func (ev *event) finished() bool {
	for _, c := range ev.Choices {
		if c.FinishReason != nil && strings.TrimSpace(*c.FinishReason) != "" {
			return true
		}
	}
	return false
}

func fallbackText(payload string) string {
	for _, re := range []*regexp.Regexp{contentField, textField} {
		if m := re.FindStringSubmatch(payload); m != nil {
			return unescape(m[1])
		}
	}
	return payload
}

func unescape(s string) string {
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}
