package vectorindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/poiesic/lorekeeper/core"
)

// Flat is the local prototype index. Scores are 1/(1+euclidean distance).
// It persists as JSON lines, one {"id","vector"} object per line.
type Flat struct {
	*memStore
}

var _ Index = (*Flat)(nil)

type flatRecord struct {
	ID     int64     `json:"id"`
	Vector []float32 `json:"vector"`
}

// NewFlat creates an uninitialized flat index.
func NewFlat() *Flat {
	return &Flat{memStore: newMemStore(distanceScore)}
}

// Tier returns TierFlat.
func (f *Flat) Tier() Tier { return TierFlat }

// SaveIndex writes one JSON line per vector, ordered by id.
func (f *Flat) SaveIndex(path string) error {
	dim, ids, rows := f.entries()
	if dim == 0 {
		return ErrNotInitialized
	}
	return writeAtomic(path, func(file *os.File) error {
		w := bufio.NewWriter(file)
		enc := json.NewEncoder(w)
		for i, id := range ids {
			if err := enc.Encode(flatRecord{ID: id, Vector: rows[i]}); err != nil {
				return err
			}
		}
		return w.Flush()
	})
}

// LoadIndex reads a JSON lines artifact. The dimension is taken from the
// first record; an artifact without records leaves the current dimension
// unchanged. Blank lines are skipped.
func (f *Flat) LoadIndex(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	dim := 0
	vectors := make(map[int64][]float32)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec flatRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("%w: %s line %d: %w", ErrCorruptSnapshot, path, line, err)
		}
		if dim == 0 {
			dim = len(rec.Vector)
			if dim == 0 {
				return fmt.Errorf("%w: %s line %d: empty vector", ErrCorruptSnapshot, path, line)
			}
		}
		if err := core.ValidateVector(rec.Vector, dim); err != nil {
			return fmt.Errorf("%w: %s line %d: %w", ErrCorruptSnapshot, path, line, err)
		}
		vectors[rec.ID] = rec.Vector
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if dim == 0 {
		dim = f.Dimension()
	}
	f.replace(dim, vectors)
	return nil
}
