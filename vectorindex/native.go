package vectorindex

import (
	"bytes"
	"fmt"
	"os"

	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/lorekeeper/storage"
)

var nativeMagic = []byte("LKIX")

const nativeVersion = 1

// Native is the in-process index. Scores are cosine similarity mapped to [0,1].
// Snapshots are mus-encoded:
//
//	magic "LKIX" | version | dim | count | (id | floats)*count
type Native struct {
	*memStore
}

var _ Index = (*Native)(nil)

// NewNative creates an uninitialized native index.
func NewNative() *Native {
	return &Native{memStore: newMemStore(cosineScore)}
}

// Tier returns TierNative.
func (n *Native) Tier() Tier { return TierNative }

// SaveIndex writes a binary snapshot to path.
func (n *Native) SaveIndex(path string) error {
	dim, ids, rows := n.entries()
	if dim == 0 {
		return ErrNotInitialized
	}

	size := len(nativeMagic) + varint.Int.Size(nativeVersion) + varint.Int.Size(dim) + varint.Int.Size(len(ids))
	for i, id := range ids {
		size += varint.Int64.Size(id) + storage.SizeFloats(rows[i])
	}
	buf := make([]byte, size)
	off := copy(buf, nativeMagic)
	off += varint.Int.Marshal(nativeVersion, buf[off:])
	off += varint.Int.Marshal(dim, buf[off:])
	off += varint.Int.Marshal(len(ids), buf[off:])
	for i, id := range ids {
		off += varint.Int64.Marshal(id, buf[off:])
		off += storage.MarshalFloats(rows[i], buf[off:])
	}

	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(buf[:off])
		return err
	})
}

// LoadIndex replaces the contents with the snapshot at path.
func (n *Native) LoadIndex(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dim, vectors, err := decodeNative(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptSnapshot, path, err)
	}
	n.replace(dim, vectors)
	return nil
}

func decodeNative(data []byte) (int, map[int64][]float32, error) {
	if !bytes.HasPrefix(data, nativeMagic) {
		return 0, nil, fmt.Errorf("bad magic")
	}
	off := len(nativeMagic)

	readInt := func() (int, error) {
		v, n, err := varint.Int.Unmarshal(data[off:])
		off += n
		return v, err
	}
	version, err := readInt()
	if err != nil {
		return 0, nil, err
	}
	if version != nativeVersion {
		return 0, nil, fmt.Errorf("unsupported version %d", version)
	}
	dim, err := readInt()
	if err != nil {
		return 0, nil, err
	}
	if dim <= 0 {
		return 0, nil, fmt.Errorf("invalid dimension %d", dim)
	}
	count, err := readInt()
	if err != nil {
		return 0, nil, err
	}
	if count < 0 || count > len(data)-off {
		return 0, nil, fmt.Errorf("invalid count %d", count)
	}

	vectors := make(map[int64][]float32, count)
	for i := 0; i < count; i++ {
		id, n, err := varint.Int64.Unmarshal(data[off:])
		if err != nil {
			return 0, nil, err
		}
		off += n
		row, n, err := storage.UnmarshalFloats(data[off:])
		if err != nil {
			return 0, nil, err
		}
		off += n
		if len(row) != dim {
			return 0, nil, fmt.Errorf("entry %d has %d components, want %d", id, len(row), dim)
		}
		vectors[id] = row
	}
	return dim, vectors, nil
}
