package retrieval

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/lorekeeper/ai/mock"
	"github.com/poiesic/lorekeeper/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNative(t *testing.T) *vectorindex.Native {
	t.Helper()
	idx := vectorindex.NewNative()
	require.NoError(t, idx.Init(4))
	ctx := context.Background()
	for i, text := range []string{"pump seals", "valve sizing", "impeller wear"} {
		v := mock.DeterministicVector(text, 4)
		require.NoError(t, idx.Upsert(ctx, []int64{int64(i + 1)}, v))
	}
	return idx
}

func TestRetriever_VectorTier(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 4
	r, err := New(newNative(t), embedder)
	require.NoError(t, err)
	ctx := context.Background()

	ids, err := r.Search(ctx, "valve sizing", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	_, err = r.Search(ctx, "valve sizing", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.CallCount(), "second query should hit the cache")
}

func TestRetriever_CacheDisabled(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 4
	r, err := New(newNative(t), embedder, WithCacheSize(0))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err = r.Search(ctx, "pump seals", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, embedder.CallCount())
}

func TestRetriever_BlankQuery(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	r, err := New(newNative(t), embedder)
	require.NoError(t, err)

	ids, err := r.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, embedder.CallCount())
}

func TestRetriever_EmbedderError(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("model offline")
	}
	r, err := New(newNative(t), embedder)
	require.NoError(t, err)

	_, err = r.Search(context.Background(), "pump", 1)
	assert.ErrorContains(t, err, "model offline")
}

func TestRetriever_TextNativeSkipsEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"jobTitle":"Seals","source_file":"a.md","contentMarkdown":"Seal text","distance":0}]}`))
	}))
	defer srv.Close()

	remote := vectorindex.NewRemote(srv.URL)
	require.NoError(t, remote.Init(384))
	r, err := New(remote, nil)
	require.NoError(t, err)

	hits, err := r.SearchHits(context.Background(), "seals", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.NotNil(t, hits[0].Item)
	assert.Equal(t, "Seal text", hits[0].Item.Content)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(vectorindex.NewNative(), nil)
	assert.ErrorIs(t, err, ErrNoEmbedder)

	_, err = New(vectorindex.NewNative(), mock.NewMockEmbedder(), WithCacheSize(-1))
	assert.Error(t, err)
}
