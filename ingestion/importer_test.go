package ingestion

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepos(t *testing.T) (*badger.KnowledgeRepository, *badger.QueueRepository) {
	t.Helper()
	queue, items, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		items.Close()
		queue.Close()
		backend.Close()
	})
	return items, queue
}

func TestNewImporter(t *testing.T) {
	items, queue := newRepos(t)

	t.Run("valid configuration", func(t *testing.T) {
		im, err := NewImporter(items, queue, WithBatchSize(0), WithLogger(nil))
		require.NoError(t, err)
		assert.Equal(t, 1, im.batchSize)
	})

	t.Run("nil knowledge repository", func(t *testing.T) {
		_, err := NewImporter(nil, queue)
		assert.Equal(t, ErrKnowledgeRepositoryRequired, err)
	})

	t.Run("nil queue repository", func(t *testing.T) {
		_, err := NewImporter(items, nil)
		assert.Equal(t, ErrQueueRepositoryRequired, err)
	})
}

func TestImport(t *testing.T) {
	items, queue := newRepos(t)
	im, err := NewImporter(items, queue)
	require.NoError(t, err)
	ctx := context.Background()

	stored, err := im.Import(ctx,
		&core.KnowledgeItem{ID: 1111, Content: "Hello embedding test"},
		&core.KnowledgeItem{Source: "manual.pdf", Content: "Derived id"},
	)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	derived := core.IDFromContent("manual.pdfDerived id")
	assert.Equal(t, derived, stored[1].ID)

	pending, err := queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "1111", pending[0].ID)
	assert.Equal(t, "Hello embedding test", pending[0].Content)
	assert.Equal(t, strconv.FormatInt(derived, 10), pending[1].ID)

	has, err := items.HasItem(ctx, 1111)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestImport_InvalidItem(t *testing.T) {
	items, queue := newRepos(t)
	im, err := NewImporter(items, queue)
	require.NoError(t, err)

	_, err = im.Import(context.Background(), &core.KnowledgeItem{ID: 1, Content: "  "})
	assert.ErrorIs(t, err, core.ErrInvalidItem)

	pending, err := queue.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestImportJSONL(t *testing.T) {
	items, queue := newRepos(t)
	im, err := NewImporter(items, queue, WithBatchSize(2))
	require.NoError(t, err)
	ctx := context.Background()

	input := strings.Join([]string{
		`{"id":1,"title":"Pumps","content":"Replace the impeller.","keywords":["impeller"],"page":4}`,
		``,
		`{"id":2,"content":"Valves are sized for peak flow."}`,
		`{not json`,
		`{"id":3,"content":"   "}`,
		`{"id":4,"content":"Seals wear at high flow.","category":"wear"}`,
	}, "\n")

	stats, err := im.ImportJSONL(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, Stats{Imported: 3, Skipped: 2}, stats)

	ids, err := items.ListItemIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, ids)

	got, err := items.GetItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Pumps", got.Title)
	assert.Equal(t, 4, got.Page)
	assert.Equal(t, []string{"impeller"}, got.Keywords)

	pending, err := queue.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestImportJSONL_Canceled(t *testing.T) {
	items, queue := newRepos(t)
	im, err := NewImporter(items, queue)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = im.ImportJSONL(ctx, strings.NewReader(`{"id":1,"content":"x"}`))
	assert.ErrorIs(t, err, context.Canceled)
}
