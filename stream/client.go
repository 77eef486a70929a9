// Package stream reads incremental chat completions from an
// OpenAI-compatible endpoint over server-sent events.
//
// Gateways disagree about the event shape, so each payload goes through an
// ordered fallback chain: structured JSON fields first, then a regex for a
// "content" or "text" field, then the raw payload itself. A stream ends on
// a [DONE] payload, on a choice with a finish_reason, or at end of body.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/lorekeeper/ai"
)

const (
	maxErrorBody = 4096
	maxLineSize  = 1 << 20
)

// Client streams chat completions. One HTTP connection is held per call.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithModel sets the model name sent with each request.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithHTTPClient sets the HTTP client. It should not carry an overall
// timeout, since streams stay open while the model generates.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the endpoint rooted at baseURL, for
// example http://localhost:11434/v1.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrBaseURLRequired
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "stream-client")
	return c, nil
}

type chatRequest struct {
	Model    string       `json:"model"`
	Stream   bool         `json:"stream"`
	Messages []ai.Message `json:"messages"`
}

// Stream sends messages and reads the streamed reply. After every event
// onPartial, when non-nil, receives the whole text accumulated so far.
//
// A non-2xx status fails before any event is read. A read error mid-stream
// ends the stream and returns the text so far without error. When ctx is
// canceled the connection is closed and the text so far is returned with
// ctx's error.
func (c *Client) Stream(ctx context.Context, messages []ai.Message, onPartial func(string)) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Stream: true, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("opening stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var buf strings.Builder
	events := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if isDoneToken(payload) {
			break
		}

		text, finished := parseEvent(payload)
		buf.WriteString(text)
		events++
		if onPartial != nil {
			onPartial(buf.String())
		}
		if finished {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return buf.String(), err
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("stream interrupted", "events", events, "err", err)
	}
	c.logger.Debug("stream complete", "events", events, "chars", buf.Len())
	return buf.String(), nil
}

// Completer adapts a Client to ai.Completer.
type Completer struct {
	client *Client
}

var _ ai.Completer = (*Completer)(nil)

// NewCompleter wraps client.
func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

// Complete streams an answer to question grounded in reference. An empty
// reply is reported as ai.ErrEmptyResponse.
func (c *Completer) Complete(ctx context.Context, question, reference string, onPartial func(string)) (string, error) {
	text, err := c.client.Stream(ctx, ai.AnswerMessages(question, reference), onPartial)
	if err != nil {
		return text, err
	}
	if strings.TrimSpace(text) == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}
