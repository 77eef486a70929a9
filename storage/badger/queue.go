package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/storage"
)

// QueueRepository implements storage.QueueRepository for BadgerDB.
//
// Each request is stored twice: the primary record under its id, and an
// order entry keyed by enqueue time and a sequence number that points back
// at the id. The primary record carries the sequence so the order entry can
// be found again on overwrite or removal.
type QueueRepository struct {
	backend *Backend
	seq     *badger.Sequence
	now     func() time.Time
}

var _ storage.QueueRepository = (*QueueRepository)(nil)

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(backend *Backend) (*QueueRepository, error) {
	seq, err := backend.GetSequence(pendingSeq)
	if err != nil {
		return nil, err
	}
	return &QueueRepository{
		backend: backend,
		seq:     seq,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the order sequence.
func (r *QueueRepository) Close() error {
	return r.seq.Release()
}

// Enqueue stores a request, replacing any pending request with the same id.
// A replaced request moves to the back of the queue.
func (r *QueueRepository) Enqueue(ctx context.Context, id, content string) error {
	if err := core.ValidateRequest(id); err != nil {
		return err
	}
	seq, err := r.seq.Next()
	if err != nil {
		return err
	}
	req := &core.EmbeddingRequest{
		ID:         id,
		Content:    content,
		EnqueuedAt: r.now().Truncate(time.Microsecond),
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makePendingKey(id)
		old, oldSeq, err := readPending(tx, key)
		if err != nil {
			return err
		}
		if old != nil {
			if err := tx.Delete(makePendingOrderKey(old.EnqueuedAt, oldSeq)); err != nil {
				return err
			}
		}
		if err := tx.Set(key, encodePending(req, seq)); err != nil {
			return err
		}
		if err := tx.Set(makePendingOrderKey(req.EnqueuedAt, seq), []byte(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListPending returns every queued request, oldest first.
func (r *QueueRepository) ListPending(ctx context.Context) ([]*core.EmbeddingRequest, error) {
	var results []*core.EmbeddingRequest
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var ids []string
		err := scanPrefix(tx, []byte(pendingOrderPrefix), func(_, val []byte) error {
			ids = append(ids, string(val))
			return ctx.Err()
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			req, seq, err := readPending(tx, makePendingKey(id))
			if err != nil {
				return err
			}
			// Order entry without a primary record; skip it.
			if req == nil {
				continue
			}
			req.Seq = seq
			results = append(results, req)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Remove deletes the given requests. Unknown ids are ignored.
func (r *QueueRepository) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makePendingKey(id)
			req, seq, err := readPending(tx, key)
			if err != nil {
				return err
			}
			if req == nil {
				continue
			}
			if err := tx.Delete(makePendingOrderKey(req.EnqueuedAt, seq)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// RemoveRead deletes each request only while its stored sequence still
// matches the one it was read with.
func (r *QueueRepository) RemoveRead(ctx context.Context, reqs ...*core.EmbeddingRequest) (int, error) {
	if len(reqs) == 0 {
		return 0, nil
	}
	removed := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		removed = 0
		for _, read := range reqs {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := makePendingKey(read.ID)
			req, seq, err := readPending(tx, key)
			if err != nil {
				return err
			}
			if req == nil || seq != read.Seq {
				continue
			}
			if err := tx.Delete(makePendingOrderKey(req.EnqueuedAt, seq)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// encodePending prefixes the mus-encoded request with its order sequence.
func encodePending(req *core.EmbeddingRequest, seq uint64) []byte {
	body := storage.MarshalRequest(req)
	buf := make([]byte, 8+len(body))
	binary.BigEndian.PutUint64(buf, seq)
	copy(buf[8:], body)
	return buf
}

func decodePending(val []byte) (*core.EmbeddingRequest, uint64, error) {
	if len(val) < 8 {
		return nil, 0, fmt.Errorf("%w: pending record", storage.ErrTruncatedData)
	}
	req, err := storage.UnmarshalRequest(val[8:])
	if err != nil {
		return nil, 0, err
	}
	return req, binary.BigEndian.Uint64(val[:8]), nil
}

// readPending returns nil without error when the key is absent.
func readPending(tx *badger.Txn, key []byte) (*core.EmbeddingRequest, uint64, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	var (
		req *core.EmbeddingRequest
		seq uint64
	)
	err = item.Value(func(val []byte) error {
		req, seq, err = decodePending(val)
		return err
	})
	return req, seq, err
}
