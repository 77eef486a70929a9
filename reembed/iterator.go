package reembed

import (
	"context"

	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/storage"
)

// DefaultBatchSize is the default number of items fetched per batch.
const DefaultBatchSize = 100

// ItemIterator walks all knowledge items in id order, in batches.
type ItemIterator struct {
	repo      storage.KnowledgeRepository
	batchSize int
}

// NewItemIterator creates an iterator. Non-positive batch sizes use
// DefaultBatchSize.
func NewItemIterator(repo storage.KnowledgeRepository, batchSize int) *ItemIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ItemIterator{repo: repo, batchSize: batchSize}
}

// Count returns the number of items the iterator would visit now.
func (it *ItemIterator) Count(ctx context.Context) (int, error) {
	ids, err := it.repo.ListItemIDs(ctx)
	return len(ids), err
}

// ForEach calls fn with each batch. It stops at the first error from fn and
// checks ctx between batches. Items deleted after the id listing are skipped.
func (it *ItemIterator) ForEach(ctx context.Context, fn func([]*core.KnowledgeItem) error) error {
	ids, err := it.repo.ListItemIDs(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += it.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+it.batchSize, len(ids))
		items, err := it.repo.GetItems(ctx, ids[start:end]...)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			continue
		}
		if err := fn(items); err != nil {
			return err
		}
	}
	return nil
}
