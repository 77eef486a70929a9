package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/embedding"
	"github.com/poiesic/lorekeeper/storage"
	"github.com/poiesic/lorekeeper/storage/badger"
	"github.com/poiesic/lorekeeper/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendFunc adapts a function to embedding.Backend.
type backendFunc func(ctx context.Context, items []embedding.Item) (map[string][]float32, error)

func (f backendFunc) Embed(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
	return f(ctx, items)
}

type fixture struct {
	queue   *badger.QueueRepository
	vectors *badger.VectorRepository
	index   *vectorindex.Native
	metrics *MetricsLog
	dir     string
}

func newFixture(t *testing.T, dim int) *fixture {
	t.Helper()
	queue, items, vectors, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		items.Close()
		queue.Close()
		backend.Close()
	})

	index := vectorindex.NewNative()
	require.NoError(t, index.Init(dim))

	dir := t.TempDir()
	metrics, err := NewMetricsLog(filepath.Join(dir, "metrics.jsonl"))
	require.NoError(t, err)

	return &fixture{queue: queue, vectors: vectors, index: index, metrics: metrics, dir: dir}
}

func (f *fixture) worker(t *testing.T, backend embedding.Backend, opts ...Option) *Worker {
	t.Helper()
	all := []Option{
		WithIndex(f.index),
		WithFallbackStore(f.vectors),
		WithMetricsLog(f.metrics),
	}
	if backend != nil {
		all = append(all, WithBackend(backend))
	}
	w, err := New(f.queue, append(all, opts...)...)
	require.NoError(t, err)
	return w
}

func (f *fixture) enqueue(t *testing.T, pairs ...string) {
	t.Helper()
	for i := 0; i+1 < len(pairs); i += 2 {
		require.NoError(t, f.queue.Enqueue(context.Background(), pairs[i], pairs[i+1]))
	}
}

func (f *fixture) pending(t *testing.T) []string {
	t.Helper()
	reqs, err := f.queue.ListPending(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}

func (f *fixture) records(t *testing.T) []core.MetricsRecord {
	t.Helper()
	recs, err := f.metrics.Read()
	require.NoError(t, err)
	return recs
}

func TestWorker_EndToEndHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"1111":[0.1,0.2,0.3]}}`))
	}))
	defer srv.Close()
	backend, err := embedding.NewHTTPBackend(srv.URL)
	require.NoError(t, err)

	f := newFixture(t, 3)
	f.enqueue(t, "1111", "pump seal maintenance")

	assert.Equal(t, core.OutcomeSuccess, f.worker(t, backend).Run(context.Background()))

	assert.Empty(t, f.pending(t))
	hits, err := f.index.Search(context.Background(), vectorindex.Query{Vector: []float32{0.1, 0.2, 0.3}}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1111), hits[0].ID)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].Processed)
	assert.Equal(t, 0, recs[0].Failures)
	assert.Equal(t, os.Getpid(), recs[0].PID)
	assert.NotZero(t, recs[0].TS)
}

func TestWorker_ResponseWithoutResultsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model loading"}`))
	}))
	defer srv.Close()
	backend, err := embedding.NewHTTPBackend(srv.URL)
	require.NoError(t, err)

	f := newFixture(t, 3)
	f.enqueue(t, "1", "one", "2", "two")

	stats, outcome := f.worker(t, backend).RunOnce(context.Background())

	assert.Equal(t, core.OutcomeRetry, outcome)
	assert.Equal(t, 2, stats.Failures)
	assert.Equal(t, []string{"1", "2"}, f.pending(t))
	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Failures)
}

func TestWorker_KeepsRequestReenqueuedDuringRun(t *testing.T) {
	f := newFixture(t, 3)
	f.enqueue(t, "7", "old text", "8", "other text")

	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		require.NoError(t, f.queue.Enqueue(ctx, "7", "new text"))
		return map[string][]float32{
			"7": {1, 0, 0},
			"8": {0, 1, 0},
		}, nil
	})
	stats, outcome := f.worker(t, backend).RunOnce(context.Background())

	assert.Equal(t, core.OutcomeSuccess, outcome)
	assert.Equal(t, 2, stats.Processed)
	pending, err := f.queue.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "7", pending[0].ID)
	assert.Equal(t, "new text", pending[0].Content)
}

func TestWorker_BatchFailureKeepsQueue(t *testing.T) {
	f := newFixture(t, 3)
	f.enqueue(t, "1", "one", "2", "two", "blank", "  ", "doc-3", "three")

	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		assert.Len(t, items, 3)
		return nil, embedding.ErrBatchFailed
	})
	stats, outcome := f.worker(t, backend).RunOnce(context.Background())

	assert.Equal(t, core.OutcomeRetry, outcome)
	assert.Equal(t, 3, stats.Failures)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, []string{"1", "2", "doc-3"}, f.pending(t))

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, 3, recs[0].Failures)
	assert.Equal(t, 0, recs[0].Processed)
}

func TestWorker_RoutesNonNumericIDsToFallback(t *testing.T) {
	f := newFixture(t, 2)
	f.enqueue(t, "42", "numeric", "notes/a.md", "path id")

	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		return map[string][]float32{"42": {1, 0}, "notes/a.md": {0, 1}}, nil
	})
	stats, outcome := f.worker(t, backend).RunOnce(context.Background())

	assert.Equal(t, core.OutcomeSuccess, outcome)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, f.index.Len())

	v, err := f.vectors.GetVector(context.Background(), "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, v)
	_, err = f.vectors.GetVector(context.Background(), "42")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

type knownItems map[int64]bool

func (k knownItems) HasItem(_ context.Context, id int64) (bool, error) {
	return k[id], nil
}

func TestWorker_UnknownNumericIDsGoToFallback(t *testing.T) {
	f := newFixture(t, 2)
	f.enqueue(t, "42", "stored item", "4242", "no such item")

	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		return map[string][]float32{"42": {1, 0}, "4242": {0, 1}}, nil
	})
	stats, outcome := f.worker(t, backend, WithItemChecker(knownItems{42: true})).RunOnce(context.Background())

	assert.Equal(t, core.OutcomeSuccess, outcome)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, f.index.Len())

	v, err := f.vectors.GetVector(context.Background(), "4242")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, v)
	_, err = f.vectors.GetVector(context.Background(), "42")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWorker_DimensionMismatchCountsAsFailure(t *testing.T) {
	f := newFixture(t, core.DefaultDimension)
	f.enqueue(t, "7", "short vector", "8", "good vector")

	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		return map[string][]float32{
			"7": make([]float32, 256),
			"8": make([]float32, core.DefaultDimension),
		}, nil
	})
	stats, outcome := f.worker(t, backend).RunOnce(context.Background())

	assert.Equal(t, core.OutcomeSuccess, outcome)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, f.index.Len())
	assert.Empty(t, f.pending(t))

	v, err := f.vectors.GetVector(context.Background(), "7")
	require.NoError(t, err)
	assert.Len(t, v, 256)
}

func TestWorker_MissingVectorIsFailureButRemoved(t *testing.T) {
	f := newFixture(t, 2)
	f.enqueue(t, "1", "one", "2", "two")

	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		return map[string][]float32{"1": {1, 1}}, nil
	})
	stats, outcome := f.worker(t, backend).RunOnce(context.Background())

	assert.Equal(t, core.OutcomeSuccess, outcome)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failures)
	assert.Empty(t, f.pending(t))
}

func TestWorker_NoBackendIsPermanentFailure(t *testing.T) {
	f := newFixture(t, 2)
	f.enqueue(t, "1", "one")

	assert.Equal(t, core.OutcomeFailure, f.worker(t, nil).Run(context.Background()))
	assert.Equal(t, []string{"1"}, f.pending(t))
	assert.Empty(t, f.records(t))
}

func TestWorker_BackendNotConfigured(t *testing.T) {
	f := newFixture(t, 2)
	f.enqueue(t, "1", "one")

	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		return nil, embedding.ErrNotConfigured
	})
	assert.Equal(t, core.OutcomeFailure, f.worker(t, backend).Run(context.Background()))
	assert.Equal(t, []string{"1"}, f.pending(t))
}

func TestWorker_EmptyQueue(t *testing.T) {
	f := newFixture(t, 2)
	called := false
	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		called = true
		return nil, nil
	})

	assert.Equal(t, core.OutcomeSuccess, f.worker(t, backend).Run(context.Background()))
	assert.False(t, called)
	assert.Empty(t, f.records(t))
}

func TestWorker_OnlyBlankRequests(t *testing.T) {
	f := newFixture(t, 2)
	f.enqueue(t, "1", "", "2", " \n ")
	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		t.Fatal("backend should not be called")
		return nil, nil
	})

	stats, outcome := f.worker(t, backend).RunOnce(context.Background())
	assert.Equal(t, core.OutcomeSuccess, outcome)
	assert.Equal(t, 2, stats.Dropped)
	assert.Empty(t, f.pending(t))
}

func TestWorker_SavesIndex(t *testing.T) {
	f := newFixture(t, 2)
	f.enqueue(t, "5", "five")
	path := filepath.Join(f.dir, vectorindex.NativeFile)
	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		return map[string][]float32{"5": {0.5, 0.5}}, nil
	})

	assert.Equal(t, core.OutcomeSuccess, f.worker(t, backend, WithIndexPath(path)).Run(context.Background()))

	loaded := vectorindex.NewNative()
	require.NoError(t, loaded.LoadIndex(path))
	assert.Equal(t, 1, loaded.Len())
}

func TestWorker_PanicBecomesRetry(t *testing.T) {
	f := newFixture(t, 2)
	f.enqueue(t, "1", "one")
	backend := backendFunc(func(ctx context.Context, items []embedding.Item) (map[string][]float32, error) {
		panic(errors.New("boom"))
	})

	assert.Equal(t, core.OutcomeRetry, f.worker(t, backend).Run(context.Background()))
	assert.Equal(t, []string{"1"}, f.pending(t))
}

func TestNew_RequiresQueue(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrQueueRequired)
}
