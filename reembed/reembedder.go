package reembed

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/storage"
)

// Config holds configuration for a re-embedding run.
type Config struct {
	// BatchSize is the number of items read per batch
	BatchSize int

	// ReportInterval is how often to report progress (number of items)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each queue write
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// Reembedder re-enqueues every knowledge item for embedding.
type Reembedder struct {
	queue    storage.QueueRepository
	config   *Config
	progress io.Writer
	iterator *ItemIterator
}

// NewReembedder creates a reembedder. progress receives human-readable
// output, typically os.Stderr.
func NewReembedder(knowledge storage.KnowledgeRepository, queue storage.QueueRepository, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &Reembedder{
		queue:    queue,
		config:   config,
		progress: progress,
		iterator: NewItemIterator(knowledge, config.BatchSize),
	}
}

// Run enqueues all items and returns how many were queued.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	if total == 0 {
		fmt.Fprintln(r.progress, "No knowledge items found (0 items)")
		return 0, nil
	}
	fmt.Fprintf(r.progress, "Queueing %d items for embedding (batch size: %d)\n", total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	queued := 0
	err = r.iterator.ForEach(ctx, func(items []*core.KnowledgeItem) error {
		for _, item := range items {
			id := strconv.FormatInt(item.ID, 10)
			err := RetryWithBackoff(ctx, func() error {
				return r.queue.Enqueue(ctx, id, item.Content)
			}, r.config.MaxRetries, r.config.RetryDelay)
			if err != nil {
				return fmt.Errorf("enqueueing item %d: %w", item.ID, err)
			}
			queued++
		}
		tracker.Update(queued)
		return nil
	})
	if err != nil {
		return queued, err
	}

	tracker.Finish()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Queued %d items in %v\n", queued, elapsed.Round(time.Millisecond))
	return queued, nil
}
