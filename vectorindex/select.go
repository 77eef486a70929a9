package vectorindex

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/lorekeeper/core"
)

// Select probes dir for local index artifacts and returns the first tier
// found, loaded and ready: native.idx, then flat.jsonl, then remote. The
// chosen tier is fixed for the life of the returned index.
//
// When no artifact exists and remote is nil, an empty native index of
// dimension dim is returned so writes can start a native artifact.
// Loaded local indexes must match dim.
func Select(dir string, dim int, remote *Remote) (Index, error) {
	nativePath := filepath.Join(dir, NativeFile)
	if exists(nativePath) {
		idx := NewNative()
		if err := loadChecked(idx, nativePath, dim); err != nil {
			return nil, err
		}
		return idx, nil
	}

	flatPath := filepath.Join(dir, FlatFile)
	if exists(flatPath) {
		idx := NewFlat()
		if err := idx.Init(dim); err != nil {
			return nil, err
		}
		if err := loadChecked(idx, flatPath, dim); err != nil {
			return nil, err
		}
		return idx, nil
	}

	if remote != nil {
		if err := remote.Init(dim); err != nil {
			return nil, err
		}
		return remote, nil
	}

	idx := NewNative()
	if err := idx.Init(dim); err != nil {
		return nil, err
	}
	return idx, nil
}

// ArtifactPath returns where idx persists itself under dir, or "" for
// tiers without a local artifact.
func ArtifactPath(dir string, idx Index) string {
	switch idx.Tier() {
	case TierNative:
		return filepath.Join(dir, NativeFile)
	case TierFlat:
		return filepath.Join(dir, FlatFile)
	default:
		return ""
	}
}

func loadChecked(idx Index, path string, dim int) error {
	if err := idx.LoadIndex(path); err != nil {
		return err
	}
	if got := idx.Dimension(); got != dim {
		return fmt.Errorf("%w: %s holds dimension %d, configured %d", core.ErrDimensionMismatch, path, got, dim)
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
