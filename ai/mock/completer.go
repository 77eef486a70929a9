package mock

import (
	"context"
	"sync"

	"github.com/poiesic/lorekeeper/ai"
)

// CompleteCall records the arguments of one Complete invocation.
type CompleteCall struct {
	Question  string
	Reference string
}

// MockCompleter is a test double for ai.Completer.
// By default it answers with Answer, reporting it to onPartial in Chunks.
type MockCompleter struct {
	// CompleteFunc replaces the default behavior when set.
	CompleteFunc func(ctx context.Context, question, reference string, onPartial func(string)) (string, error)

	// Chunks are delivered to onPartial in order, accumulated. When empty the
	// whole Answer is delivered once.
	Chunks []string

	// Answer is returned when CompleteFunc is nil and Chunks is empty.
	Answer string

	// Err, when set, is returned instead of an answer.
	Err error

	mu    sync.Mutex
	calls []CompleteCall
}

var _ ai.Completer = (*MockCompleter)(nil)

// NewMockCompleter creates a completer that always answers with answer.
func NewMockCompleter(answer string) *MockCompleter {
	return &MockCompleter{Answer: answer}
}

// Complete records the call and returns the configured answer.
func (m *MockCompleter) Complete(ctx context.Context, question, reference string, onPartial func(string)) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, CompleteCall{Question: question, Reference: reference})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, question, reference, onPartial)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if len(m.Chunks) == 0 {
		if onPartial != nil {
			onPartial(m.Answer)
		}
		return m.Answer, nil
	}
	var text string
	for _, chunk := range m.Chunks {
		text += chunk
		if onPartial != nil {
			onPartial(text)
		}
	}
	return text, nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockCompleter) Calls() []CompleteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompleteCall(nil), m.calls...)
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
