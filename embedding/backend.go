// Package embedding turns batches of queued content into vectors through an
// external embedding service. Two transports are supported: an HTTP endpoint
// and a local command-line script.
//
// Both receive the same JSON array of {"id","content"} objects and answer with
//
//	{"results": {"<id>": [0.1, 0.2, ...], ...}}
//
// Entries whose vector cannot be decoded are skipped and logged; the rest of
// the batch is still returned.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Item is one entry of a batch sent to a backend.
type Item struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Backend embeds a batch of items.
// Implementations return vectors keyed by item ID; items missing from the
// result were not embedded. A returned error means the whole batch failed.
type Backend interface {
	Embed(ctx context.Context, items []Item) (map[string][]float32, error)
}

type response struct {
	Results map[string]json.RawMessage `json:"results"`
}

// parseResults decodes a backend response. A body without a results object
// is malformed. Per-item decode failures are logged and dropped.
func parseResults(body []byte, logger *slog.Logger) (map[string][]float32, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: no results object", ErrMalformedResponse)
	}

	vectors := make(map[string][]float32, len(resp.Results))
	for id, raw := range resp.Results {
		var v []float32
		if err := json.Unmarshal(raw, &v); err != nil {
			logger.Warn("skipping malformed vector", "id", id, "err", err)
			continue
		}
		if len(v) == 0 {
			logger.Warn("skipping empty vector", "id", id)
			continue
		}
		vectors[id] = v
	}
	return vectors, nil
}
