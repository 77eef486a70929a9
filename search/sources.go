package search

import (
	"context"
	"errors"

	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/storage"
	"github.com/poiesic/lorekeeper/vectorindex"
)

// LexicalSource yields items whose text matches the query.
type LexicalSource struct {
	repo storage.KnowledgeRepository
}

var _ Source = (*LexicalSource)(nil)

// NewLexicalSource creates a lexical source over repo.
func NewLexicalSource(repo storage.KnowledgeRepository) (*LexicalSource, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	return &LexicalSource{repo: repo}, nil
}

func (s *LexicalSource) Name() string { return "lexical" }

func (s *LexicalSource) Kind() core.SourceKind { return core.SourceLexical }

// Candidates runs a text search. Queries the repository rejects as invalid
// produce no candidates.
func (s *LexicalSource) Candidates(ctx context.Context, query string, limit int) ([]core.KnowledgeItem, error) {
	items, err := s.repo.SearchText(ctx, query, limit)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidQuery) {
			return nil, nil
		}
		return nil, err
	}
	return deref(items), nil
}

// HitSearcher returns nearest-neighbor hits for query text.
// *retrieval.Retriever satisfies it.
type HitSearcher interface {
	SearchHits(ctx context.Context, text string, k int) ([]vectorindex.Hit, error)
}

// VectorSource yields the nearest neighbors of the query.
type VectorSource struct {
	retriever HitSearcher
	repo      storage.KnowledgeRepository
	minScore  float64
}

var _ Source = (*VectorSource)(nil)

// VectorOption configures a VectorSource.
type VectorOption func(*VectorSource) error

// WithMinScore drops hits whose index score is below floor.
// Default is 0, which keeps every hit.
func WithMinScore(floor float64) VectorOption {
	return func(s *VectorSource) error {
		if floor < 0 || floor > 1 {
			return ErrInvalidMinScore
		}
		s.minScore = floor
		return nil
	}
}

// NewVectorSource creates a vector source. Hits that arrive without item
// content are hydrated from repo; repo may be nil when the index always
// returns items, in which case bare hits are dropped.
func NewVectorSource(retriever HitSearcher, repo storage.KnowledgeRepository, opts ...VectorOption) (*VectorSource, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	s := &VectorSource{retriever: retriever, repo: repo}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *VectorSource) Name() string { return "vector" }

func (s *VectorSource) Kind() core.SourceKind { return core.SourceVector }

// Candidates returns hydrated hits at or above the score floor, in index
// order.
func (s *VectorSource) Candidates(ctx context.Context, query string, limit int) ([]core.KnowledgeItem, error) {
	all, err := s.retriever.SearchHits(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	hits := all[:0:0]
	for _, h := range all {
		if h.Score >= s.minScore {
			hits = append(hits, h)
		}
	}

	var missing []int64
	for _, h := range hits {
		if h.Item == nil {
			missing = append(missing, h.ID)
		}
	}
	hydrated := make(map[int64]*core.KnowledgeItem, len(missing))
	if len(missing) > 0 && s.repo != nil {
		items, err := s.repo.GetItems(ctx, missing...)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			hydrated[item.ID] = item
		}
	}

	out := make([]core.KnowledgeItem, 0, len(hits))
	for _, h := range hits {
		item := h.Item
		if item == nil {
			item = hydrated[h.ID]
		}
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func deref(items []*core.KnowledgeItem) []core.KnowledgeItem {
	out := make([]core.KnowledgeItem, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}
