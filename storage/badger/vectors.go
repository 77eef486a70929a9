package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lorekeeper/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
// It holds vectors whose request id does not name a knowledge item.
type VectorRepository struct {
	backend *Backend
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) (*VectorRepository, error) {
	return &VectorRepository{backend: backend}, nil
}

// PutVector stores vector under key, replacing any previous value.
func (r *VectorRepository) PutVector(ctx context.Context, key string, vector []float32) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeRawVectorKey(key), storage.MarshalVector(vector)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetVector returns the vector stored under key or storage.ErrNotFound.
func (r *VectorRepository) GetVector(ctx context.Context, key string) ([]float32, error) {
	var result []float32
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRawVectorKey(key))
		if err == badger.ErrKeyNotFound {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalVector(val)
			return err
		})
	}, false)
	return result, err
}

// DeleteVector removes the vector stored under key. Missing keys are ignored.
func (r *VectorRepository) DeleteVector(ctx context.Context, key string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeRawVectorKey(key)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
