// Package retrieval adapts a vector index to text queries.
//
// Vector tiers need the query embedded first; the retriever does that with
// an ai.Embedder and caches the result. Text-native tiers receive the text
// unchanged.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/poiesic/lorekeeper/ai"
	"github.com/poiesic/lorekeeper/vectorindex"
)

const defaultCacheSize = 256

// ErrNoEmbedder indicates a vector tier was configured without an embedder.
var ErrNoEmbedder = errors.New("retriever has no query embedder")

// Retriever runs nearest-neighbor searches from query text.
type Retriever struct {
	index     vectorindex.Index
	embedder  ai.Embedder
	cacheSize int
	cache     *lru.Cache[string, []float32]
	logger    *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithCacheSize sets how many query embeddings are kept. Zero disables caching.
func WithCacheSize(size int) Option {
	return func(r *Retriever) error {
		if size < 0 {
			return fmt.Errorf("cache size must be non-negative, got %d", size)
		}
		r.cacheSize = size
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		r.logger = logger
		return nil
	}
}

// New creates a retriever over index. embedder may be nil when the index is
// text-native.
func New(index vectorindex.Index, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	r := &Retriever{
		index:     index,
		embedder:  embedder,
		cacheSize: defaultCacheSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if !index.Tier().TextNative() && embedder == nil {
		return nil, ErrNoEmbedder
	}
	if r.cacheSize > 0 {
		cache, err := lru.New[string, []float32](r.cacheSize)
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}
	r.logger = r.logger.With("component", "retriever", "tier", string(index.Tier()))
	return r, nil
}

// Search returns the ids of the k nearest items to text, closest first.
func (r *Retriever) Search(ctx context.Context, text string, k int) ([]int64, error) {
	hits, err := r.SearchHits(ctx, text, k)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// SearchHits is Search with scores and, for tiers that supply them, items.
// Blank text or non-positive k yields no hits.
func (r *Retriever) SearchHits(ctx context.Context, text string, k int) ([]vectorindex.Hit, error) {
	text = strings.TrimSpace(text)
	if text == "" || k <= 0 {
		return []vectorindex.Hit{}, nil
	}

	q := vectorindex.Query{Text: text}
	if !r.index.Tier().TextNative() {
		vector, err := r.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		q.Vector = vector
	}

	hits, err := r.index.Search(ctx, q, k)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("ann search", "k", k, "hits", len(hits))
	return hits, nil
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float32, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(text); ok {
			return v, nil
		}
	}
	v, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Add(text, v)
	}
	return v, nil
}
