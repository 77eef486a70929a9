package vectorindex

import (
	"cmp"
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/poiesic/lorekeeper/core"
)

// scoreFunc maps a query and a stored vector to a score in [0,1].
type scoreFunc func(q, v []float32) float64

// memStore is the in-process vector table shared by the local tiers.
// Search is a full scan.
type memStore struct {
	mu      sync.RWMutex
	dim     int
	vectors map[int64][]float32
	score   scoreFunc
}

func newMemStore(score scoreFunc) *memStore {
	return &memStore{
		vectors: make(map[int64][]float32),
		score:   score,
	}
}

func (m *memStore) Init(dim int) error {
	if err := core.ValidateDimension(dim); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dim = dim
	m.vectors = make(map[int64][]float32)
	return nil
}

func (m *memStore) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim
}

func (m *memStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *memStore) Upsert(ctx context.Context, ids []int64, vectors []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, err := splitRows(ids, vectors, m.dim)
	if err != nil {
		return err
	}
	for i, id := range ids {
		m.vectors[id] = rows[i]
	}
	return nil
}

func (m *memStore) Search(ctx context.Context, q Query, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dim == 0 {
		return nil, ErrNotInitialized
	}
	if len(q.Vector) == 0 {
		return nil, ErrVectorRequired
	}
	if err := core.ValidateVector(q.Vector, m.dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(m.vectors))
	for id, v := range m.vectors {
		hits = append(hits, Hit{ID: id, Score: core.ClampScore(m.score(q.Vector, v))})
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// entries returns a copy of the table sorted by id.
func (m *memStore) entries() (int, []int64, [][]float32) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.vectors))
	for id := range m.vectors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	rows := make([][]float32, len(ids))
	for i, id := range ids {
		rows[i] = m.vectors[id]
	}
	return m.dim, ids, rows
}

// replace swaps in a fully decoded table.
func (m *memStore) replace(dim int, vectors map[int64][]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dim = dim
	m.vectors = vectors
}

// cosineScore maps cosine similarity from [-1,1] onto [0,1].
func cosineScore(q, v []float32) float64 {
	var dot, nq, nv float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
		nq += float64(q[i]) * float64(q[i])
		nv += float64(v[i]) * float64(v[i])
	}
	if nq == 0 || nv == 0 {
		return 0
	}
	return (dot/(math.Sqrt(nq)*math.Sqrt(nv)) + 1) / 2
}

// distanceScore maps Euclidean distance onto (0,1].
func distanceScore(q, v []float32) float64 {
	var sum float64
	for i := range q {
		d := float64(q[i]) - float64(v[i])
		sum += d * d
	}
	return 1 / (1 + math.Sqrt(sum))
}

// writeAtomic writes data produced by write to path via a temporary file.
func writeAtomic(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
