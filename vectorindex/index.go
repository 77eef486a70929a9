// Package vectorindex stores fixed-dimension vectors keyed by item id and
// answers nearest-neighbor queries over them.
//
// Three tiers share the Index interface:
//
//   - Native: in-process index persisted as a binary snapshot (native.idx)
//   - Flat: in-process index persisted as JSON lines (flat.jsonl)
//   - Remote: an HTTP search service that embeds query text itself
//
// Select picks a tier once, at startup, by probing for the local artifacts.
// Every tier rejects vectors whose length differs from the configured
// dimension with core.ErrDimensionMismatch.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/poiesic/lorekeeper/core"
)

// Artifact file names probed by Select.
const (
	NativeFile = "native.idx"
	FlatFile   = "flat.jsonl"
)

// Tier names an index implementation.
type Tier string

const (
	TierNative Tier = "native"
	TierFlat   Tier = "flat"
	TierRemote Tier = "remote"
)

// TextNative reports whether the tier searches by query text rather than by
// a query vector.
func (t Tier) TextNative() bool {
	return t == TierRemote
}

// Query is a nearest-neighbor request. Vector tiers read Vector; text-native
// tiers read Text.
type Query struct {
	Text   string
	Vector []float32
}

// Hit is one search result. Score is in [0,1], higher is closer. Item is set
// only by tiers that return item content alongside ids.
type Hit struct {
	ID    int64
	Score float64
	Item  *core.KnowledgeItem
}

// Index is the common contract of all tiers.
// Implementations are safe for concurrent use.
type Index interface {
	// Tier identifies the implementation.
	Tier() Tier

	// Init prepares an empty index of the given dimension.
	Init(dim int) error

	// Dimension returns the configured dimension, 0 before Init.
	Dimension() int

	// Upsert inserts or replaces vectors. vectors holds len(ids) rows of
	// Dimension() floats each, row-major.
	Upsert(ctx context.Context, ids []int64, vectors []float32) error

	// Search returns up to k hits ordered by descending score.
	Search(ctx context.Context, q Query, k int) ([]Hit, error)

	// SaveIndex persists the index to path.
	SaveIndex(path string) error

	// LoadIndex replaces the index contents with those stored at path.
	LoadIndex(path string) error
}

// splitRows checks that vectors holds exactly one row of dim floats per id
// and slices it into rows.
func splitRows(ids []int64, vectors []float32, dim int) ([][]float32, error) {
	if dim <= 0 {
		return nil, ErrNotInitialized
	}
	if len(vectors) != len(ids)*dim {
		return nil, fmt.Errorf("%w: expected %d floats for %d ids of dimension %d, got %d",
			core.ErrDimensionMismatch, len(ids)*dim, len(ids), dim, len(vectors))
	}
	rows := make([][]float32, len(ids))
	for i := range ids {
		row := make([]float32, dim)
		copy(row, vectors[i*dim:(i+1)*dim])
		rows[i] = row
	}
	return rows, nil
}
