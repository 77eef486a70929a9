package storage

import (
	"context"

	"github.com/poiesic/lorekeeper/core"
)

// QueueRepository is the durable holding area for content awaiting embedding.
// Implementations must be thread-safe and support concurrent access.
type QueueRepository interface {
	// Enqueue durably stores a request keyed by id.
	// An existing request with the same id is overwritten (last write wins)
	// and moves to the back of the queue.
	Enqueue(ctx context.Context, id, content string) error

	// ListPending returns all queued requests, oldest first, with Seq set.
	ListPending(ctx context.Context) ([]*core.EmbeddingRequest, error)

	// Remove deletes requests by id. Missing ids are ignored.
	Remove(ctx context.Context, ids ...string) error

	// RemoveRead deletes requests previously returned by ListPending.
	// A request whose id was enqueued again since it was read is kept.
	// Returns the number of requests deleted.
	RemoveRead(ctx context.Context, reqs ...*core.EmbeddingRequest) (int, error)

	// Close releases resources held by the repository.
	Close() error
}

// KnowledgeRepository provides read/write access to reference items.
type KnowledgeRepository interface {
	// AddItems stores items, overwriting items with the same ID.
	// Items with ID=0 get an ID derived from their content.
	// Returns the items with IDs populated.
	AddItems(ctx context.Context, items ...*core.KnowledgeItem) ([]*core.KnowledgeItem, error)

	// GetItem retrieves a single item by ID.
	// Returns ErrNotFound if the item doesn't exist.
	GetItem(ctx context.Context, id int64) (*core.KnowledgeItem, error)

	// GetItems retrieves multiple items by ID, preserving the requested order.
	// Returns only the items that exist (no error for missing items).
	GetItems(ctx context.Context, ids ...int64) ([]*core.KnowledgeItem, error)

	// HasItem reports whether an item with the given ID exists.
	HasItem(ctx context.Context, id int64) (bool, error)

	// ListItemIDs returns the ids of all stored items in ascending order.
	ListItemIDs(ctx context.Context) ([]int64, error)

	// SearchText returns up to limit items whose title, content, or keywords
	// contain the query, compared case-insensitively.
	SearchText(ctx context.Context, query string, limit int) ([]*core.KnowledgeItem, error)

	// Close releases resources held by the repository.
	Close() error
}

// VectorRepository stores raw vectors keyed by an arbitrary string.
// It is the fallback for embeddings whose id does not name a knowledge item.
type VectorRepository interface {
	// PutVector stores vector under key, overwriting any previous value.
	PutVector(ctx context.Context, key string, vector []float32) error

	// GetVector retrieves the vector stored under key.
	// Returns ErrNotFound if nothing is stored.
	GetVector(ctx context.Context, key string) ([]float32, error)

	// DeleteVector removes the vector stored under key.
	DeleteVector(ctx context.Context, key string) error
}
