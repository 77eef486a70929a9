package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxErrorBody       = 512
)

// HTTPBackend posts batches to an embedding service URL.
type HTTPBackend struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ Backend = (*HTTPBackend)(nil)

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(b *HTTPBackend) {
		b.client = client
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(b *HTTPBackend) {
		b.logger = logger
	}
}

// NewHTTPBackend creates a backend posting to url.
func NewHTTPBackend(url string, opts ...HTTPOption) (*HTTPBackend, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty service url", ErrNotConfigured)
	}
	b := &HTTPBackend{
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "embedding-http")
	return b, nil
}

// Embed posts items as a JSON array and parses the results map.
// Transport failures and non-2xx statuses are reported as ErrBatchFailed.
func (b *HTTPBackend) Embed(ctx context.Context, items []Item) (map[string][]float32, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrBatchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrBatchFailed, resp.StatusCode, bytes.TrimSpace(data))
	}

	vectors, err := parseResults(data, b.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	b.logger.Debug("embedded batch", "requested", len(items), "returned", len(vectors))
	return vectors, nil
}
