package search

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/lorekeeper/ai/mock"
	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/retrieval"
	"github.com/poiesic/lorekeeper/storage/badger"
	"github.com/poiesic/lorekeeper/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []*core.KnowledgeItem{
	{ID: 1, Title: "Pump maintenance", Content: "Replace the impeller every 2000 hours of operation or when vibration rises.", Keywords: []string{"impeller"}},
	{ID: 2, Title: "Valve sizing", Content: "Size valves for the maximum expected flow rate.", Keywords: []string{"flow"}},
	{ID: 3, Title: "Seals", Content: "Pump seals wear faster at high flow."},
}

func newRepo(t *testing.T) *badger.KnowledgeRepository {
	t.Helper()
	queue, items, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		items.Close()
		queue.Close()
		backend.Close()
	})
	_, err = items.AddItems(context.Background(), corpus...)
	require.NoError(t, err)
	return items
}

type fakeHits struct {
	hits []vectorindex.Hit
	err  error
}

func (f *fakeHits) SearchHits(_ context.Context, _ string, _ int) ([]vectorindex.Hit, error) {
	return f.hits, f.err
}

func TestLexicalSource(t *testing.T) {
	repo := newRepo(t)
	src, err := NewLexicalSource(repo)
	require.NoError(t, err)
	assert.Equal(t, core.SourceLexical, src.Kind())
	ctx := context.Background()

	items, err := src.Candidates(ctx, "pump", 10)
	require.NoError(t, err)
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	assert.ElementsMatch(t, []int64{1, 3}, ids)

	items, err = src.Candidates(ctx, "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = NewLexicalSource(nil)
	assert.Equal(t, ErrRepositoryRequired, err)
}

func TestVectorSource_Hydrates(t *testing.T) {
	repo := newRepo(t)
	idx := vectorindex.NewNative()
	require.NoError(t, idx.Init(4))
	ctx := context.Background()
	for _, item := range corpus {
		require.NoError(t, idx.Upsert(ctx, []int64{item.ID}, mock.DeterministicVector(item.Content, 4)))
	}
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 4
	r, err := retrieval.New(idx, embedder)
	require.NoError(t, err)

	src, err := NewVectorSource(r, repo)
	require.NoError(t, err)
	assert.Equal(t, core.SourceVector, src.Kind())

	items, err := src.Candidates(ctx, corpus[1].Content, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, *corpus[1], items[0])
}

func TestVectorSource_PrefersHitItems(t *testing.T) {
	remoteItem := &core.KnowledgeItem{ID: 99, Content: "from the remote index"}
	hits := &fakeHits{hits: []vectorindex.Hit{
		{ID: 99, Score: 0.9, Item: remoteItem},
		{ID: 12345, Score: 0.5},
	}}

	src, err := NewVectorSource(hits, nil)
	require.NoError(t, err)

	items, err := src.Candidates(context.Background(), "remote", 5)
	require.NoError(t, err)
	require.Len(t, items, 1, "bare hits without a repository are dropped")
	assert.Equal(t, *remoteItem, items[0])
}

func TestVectorSource_Errors(t *testing.T) {
	_, err := NewVectorSource(nil, nil)
	assert.Equal(t, ErrRetrieverRequired, err)

	src, err := NewVectorSource(&fakeHits{err: errors.New("breaker open")}, nil)
	require.NoError(t, err)
	_, err = src.Candidates(context.Background(), "q", 5)
	assert.ErrorContains(t, err, "breaker open")
}

func TestVectorSource_MinScore(t *testing.T) {
	repo := newRepo(t)
	hits := &fakeHits{hits: []vectorindex.Hit{
		{ID: 1, Score: 0.92},
		{ID: 2, Score: 0.71},
		{ID: 3, Score: 0.40},
	}}

	src, err := NewVectorSource(hits, repo, WithMinScore(0.7))
	require.NoError(t, err)
	items, err := src.Candidates(context.Background(), "impeller", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, int64(2), items[1].ID)

	src, err = NewVectorSource(hits, repo, WithMinScore(0.95))
	require.NoError(t, err)
	items, err = src.Candidates(context.Background(), "impeller", 5)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = NewVectorSource(hits, repo, WithMinScore(1.5))
	assert.Equal(t, ErrInvalidMinScore, err)
}

func TestEngine_LexicalAndVector(t *testing.T) {
	repo := newRepo(t)
	lexical, err := NewLexicalSource(repo)
	require.NoError(t, err)
	vector, err := NewVectorSource(&fakeHits{hits: []vectorindex.Hit{{ID: 2}, {ID: 3}}}, repo)
	require.NoError(t, err)

	e, err := NewEngine([]Source{lexical, vector})
	require.NoError(t, err)

	results, err := e.Search(context.Background(), "pump", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	assert.Equal(t, int64(1), results[0].Item.ID)
	assert.Equal(t, core.SourceVector, results[2].Origin)
	assert.Equal(t, int64(2), results[2].Item.ID)
}
