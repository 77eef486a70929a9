// Package worker drains the embedding queue.
//
// One Run reads every pending request, sends the non-blank ones to the
// embedding backend as a single batch, stores the returned vectors and
// removes what it read. Vectors for numeric ids go to the vector index;
// anything else, and anything the index rejects, goes to the fallback
// vector store. Each run that reaches the backend appends a metrics record.
//
// Run reports a core.Outcome instead of an error. A failed batch leaves the
// queue as it was and asks for a retry; a missing backend is a permanent
// failure until configuration changes.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/embedding"
	"github.com/poiesic/lorekeeper/storage"
	"github.com/poiesic/lorekeeper/vectorindex"
)

// Stats summarizes one run.
type Stats struct {
	Read      int // pending requests read
	Dropped   int // blank requests removed without embedding
	Processed int // vectors persisted
	Failures  int
	Duration  time.Duration
}

// Worker runs embedding batches.
type Worker struct {
	queue     storage.QueueRepository
	backend   embedding.Backend
	index     vectorindex.Index
	fallback  storage.VectorRepository
	items     ItemChecker
	metrics   *MetricsLog
	indexPath string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Worker.
type Option func(*Worker) error

// WithBackend sets the embedding backend. Without one, Run reports
// core.OutcomeFailure.
func WithBackend(backend embedding.Backend) Option {
	return func(w *Worker) error {
		w.backend = backend
		return nil
	}
}

// WithIndex sets the vector index receiving numeric ids.
func WithIndex(index vectorindex.Index) Option {
	return func(w *Worker) error {
		w.index = index
		return nil
	}
}

// WithIndexPath makes the worker save the index to path after each run that
// upserted vectors.
func WithIndexPath(path string) Option {
	return func(w *Worker) error {
		w.indexPath = path
		return nil
	}
}

// WithFallbackStore sets where vectors go when the index cannot take them.
func WithFallbackStore(store storage.VectorRepository) Option {
	return func(w *Worker) error {
		w.fallback = store
		return nil
	}
}

// ItemChecker reports whether a knowledge item exists.
// storage.KnowledgeRepository satisfies it.
type ItemChecker interface {
	HasItem(ctx context.Context, id int64) (bool, error)
}

// WithItemChecker restricts the index to ids of stored items. Numeric ids
// with no stored item go to the fallback store. Without a checker every
// numeric id is indexed.
func WithItemChecker(items ItemChecker) Option {
	return func(w *Worker) error {
		w.items = items
		return nil
	}
}

// WithMetricsLog sets the run metrics log.
func WithMetricsLog(log *MetricsLog) Option {
	return func(w *Worker) error {
		w.metrics = log
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// New creates a worker draining queue.
func New(queue storage.QueueRepository, opts ...Option) (*Worker, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}
	w := &Worker{
		queue:  queue,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "embedding-worker")
	return w, nil
}

// Run processes one batch and reports the outcome.
func (w *Worker) Run(ctx context.Context) core.Outcome {
	_, outcome := w.RunOnce(ctx)
	return outcome
}

// RunOnce is Run with run statistics.
func (w *Worker) RunOnce(ctx context.Context) (stats Stats, outcome core.Outcome) {
	start := w.now()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("embedding run panicked", "panic", r)
			outcome = core.OutcomeRetry
		}
		stats.Duration = w.now().Sub(start)
	}()

	if w.backend == nil {
		w.logger.Error("embedding backend not configured")
		return stats, core.OutcomeFailure
	}

	pending, err := w.queue.ListPending(ctx)
	if err != nil {
		w.logger.Error("failed to list pending requests", "err", err)
		return stats, core.OutcomeRetry
	}
	stats.Read = len(pending)
	if len(pending) == 0 {
		return stats, core.OutcomeSuccess
	}

	var blank []*core.EmbeddingRequest
	batch := make([]embedding.Item, 0, len(pending))
	read := make([]*core.EmbeddingRequest, 0, len(pending))
	for _, req := range pending {
		if strings.TrimSpace(req.Content) == "" {
			blank = append(blank, req)
			continue
		}
		batch = append(batch, embedding.Item{ID: req.ID, Content: req.Content})
		read = append(read, req)
	}
	if len(blank) > 0 {
		n, err := w.queue.RemoveRead(ctx, blank...)
		if err != nil {
			w.logger.Warn("failed to drop blank requests", "count", len(blank), "err", err)
		}
		stats.Dropped = n
	}
	if len(batch) == 0 {
		return stats, core.OutcomeSuccess
	}

	vectors, err := w.backend.Embed(ctx, batch)
	if err != nil {
		if errors.Is(err, embedding.ErrNotConfigured) {
			w.logger.Error("embedding backend not configured", "err", err)
			return stats, core.OutcomeFailure
		}
		w.logger.Warn("embedding batch failed", "size", len(batch), "err", err)
		stats.Failures = len(batch)
		w.record(start, stats)
		return stats, core.OutcomeRetry
	}

	stats.Processed, stats.Failures = w.persist(ctx, batch, vectors)

	outcome = core.OutcomeSuccess
	removed, err := w.queue.RemoveRead(ctx, read...)
	if err != nil {
		w.logger.Error("failed to remove processed requests", "count", len(read), "err", err)
		outcome = core.OutcomeRetry
	} else if kept := len(read) - removed; kept > 0 {
		w.logger.Info("requests re-enqueued during run kept for next run", "count", kept)
	}

	w.record(start, stats)
	w.logger.Info("embedding run complete",
		"read", stats.Read, "processed", stats.Processed, "failures", stats.Failures)
	return stats, outcome
}

// persist stores the returned vectors and returns processed and failure counts.
func (w *Worker) persist(ctx context.Context, batch []embedding.Item, vectors map[string][]float32) (int, int) {
	processed, failures := 0, 0

	var (
		indexIDs  []int64
		indexKeys []string
		rows      []float32
	)
	dim := 0
	if w.index != nil {
		dim = w.index.Dimension()
	}

	for _, item := range batch {
		v, ok := vectors[item.ID]
		if !ok {
			w.logger.Warn("no vector returned", "id", item.ID)
			failures++
			continue
		}
		id, numeric := parseItemID(item.ID)
		if numeric && w.index != nil {
			numeric = w.known(ctx, id)
		}
		if !numeric || w.index == nil {
			if w.storeFallback(ctx, item.ID, v) {
				processed++
			} else {
				failures++
			}
			continue
		}
		if err := core.ValidateVector(v, dim); err != nil {
			w.logger.Warn("index rejected vector", "id", item.ID, "err", err)
			failures++
			w.storeFallback(ctx, item.ID, v)
			continue
		}
		indexIDs = append(indexIDs, id)
		indexKeys = append(indexKeys, item.ID)
		rows = append(rows, v...)
	}

	if len(indexIDs) == 0 {
		return processed, failures
	}
	if err := w.index.Upsert(ctx, indexIDs, rows); err != nil {
		w.logger.Warn("index upsert failed", "count", len(indexIDs), "err", err)
		failures += len(indexIDs)
		for i, key := range indexKeys {
			w.storeFallback(ctx, key, rows[i*dim:(i+1)*dim])
		}
		return processed, failures
	}
	processed += len(indexIDs)

	if w.indexPath != "" {
		if err := w.index.SaveIndex(w.indexPath); err != nil {
			w.logger.Warn("failed to save index", "path", w.indexPath, "err", err)
		}
	}
	return processed, failures
}

// known reports whether id names a stored item. Lookup errors count as
// known so a storage hiccup does not divert vectors away from the index.
func (w *Worker) known(ctx context.Context, id int64) bool {
	if w.items == nil {
		return true
	}
	ok, err := w.items.HasItem(ctx, id)
	if err != nil {
		w.logger.Warn("item lookup failed", "id", id, "err", err)
		return true
	}
	return ok
}

func (w *Worker) storeFallback(ctx context.Context, key string, v []float32) bool {
	if w.fallback == nil {
		w.logger.Warn("no fallback store for vector", "id", key)
		return false
	}
	if err := w.fallback.PutVector(ctx, key, v); err != nil {
		w.logger.Warn("failed to store fallback vector", "id", key, "err", err)
		return false
	}
	return true
}

func (w *Worker) record(start time.Time, stats Stats) {
	if w.metrics == nil {
		return
	}
	rec := core.MetricsRecord{
		TS:         start.Unix(),
		Processed:  stats.Processed,
		Failures:   stats.Failures,
		PID:        os.Getpid(),
		DurationMs: w.now().Sub(start).Milliseconds(),
	}
	if err := w.metrics.Append(rec); err != nil {
		w.logger.Warn("failed to append metrics", "path", w.metrics.Path(), "err", err)
	}
}

// parseItemID reports whether a request id names a knowledge item.
func parseItemID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
