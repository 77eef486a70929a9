package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/storage"
)

const (
	// DefaultBatchSize is the number of items stored per write.
	DefaultBatchSize = 100

	maxLineSize = 4 << 20
)

// Stats summarizes an import.
type Stats struct {
	Imported int
	Skipped  int
}

// Importer stores knowledge items and queues them for embedding.
type Importer struct {
	knowledge storage.KnowledgeRepository
	queue     storage.QueueRepository
	batchSize int
	logger    *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer) error

// WithBatchSize sets how many items are written per batch.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(im *Importer) error {
		if size < 1 {
			size = 1
		}
		im.batchSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) error {
		if logger == nil {
			logger = slog.Default()
		}
		im.logger = logger
		return nil
	}
}

// NewImporter creates an importer.
func NewImporter(knowledge storage.KnowledgeRepository, queue storage.QueueRepository, opts ...Option) (*Importer, error) {
	if knowledge == nil {
		return nil, ErrKnowledgeRepositoryRequired
	}
	if queue == nil {
		return nil, ErrQueueRepositoryRequired
	}
	im := &Importer{
		knowledge: knowledge,
		queue:     queue,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(im); err != nil {
			return nil, err
		}
	}
	im.logger = im.logger.With("component", "importer")
	return im, nil
}

// Import stores items and enqueues each for embedding. Items without an id
// get one derived from their content. Invalid items fail the whole call.
func (im *Importer) Import(ctx context.Context, items ...*core.KnowledgeItem) ([]*core.KnowledgeItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	stored, err := im.knowledge.AddItems(ctx, items...)
	if err != nil {
		return nil, fmt.Errorf("storing items: %w", err)
	}
	for _, item := range stored {
		if err := im.queue.Enqueue(ctx, strconv.FormatInt(item.ID, 10), item.Content); err != nil {
			return nil, fmt.Errorf("enqueueing item %d: %w", item.ID, err)
		}
	}
	im.logger.Debug("imported items", "count", len(stored))
	return stored, nil
}

type record struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Source   string   `json:"source"`
	Page     int      `json:"page"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
}

func (r record) item() *core.KnowledgeItem {
	return &core.KnowledgeItem{
		ID:       r.ID,
		Title:    r.Title,
		Content:  r.Content,
		Source:   r.Source,
		Page:     r.Page,
		Category: r.Category,
		Keywords: r.Keywords,
	}
}

// ImportJSONL reads one JSON item per line from r. Blank lines are ignored.
// Lines that do not decode or fail validation are skipped and counted.
func (im *Importer) ImportJSONL(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	batch := make([]*core.KnowledgeItem, 0, im.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		stored, err := im.Import(ctx, batch...)
		if err != nil {
			return err
		}
		stats.Imported += len(stored)
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			im.logger.Warn("skipping malformed line", "line", line, "err", err)
			stats.Skipped++
			continue
		}
		item := rec.item()
		if err := core.ValidateItem(item); err != nil {
			im.logger.Warn("skipping invalid item", "line", line, "err", err)
			stats.Skipped++
			continue
		}
		batch = append(batch, item)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading line %d: %w", line+1, err)
	}
	if err := flush(); err != nil {
		return stats, err
	}
	im.logger.Info("import complete", "imported", stats.Imported, "skipped", stats.Skipped)
	return stats, nil
}
