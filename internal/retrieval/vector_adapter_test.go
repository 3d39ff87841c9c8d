package retrieval

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/dataset"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/embedding"
)

func TestMemoryVectorAdapter_SearchOrdersByDistance(t *testing.T) {
	a := NewMemoryVectorAdapter()
	ctx := context.Background()

	require.NoError(t, a.Insert(ctx, []VectorEntry{
		{ID: uuid.New(), SourceID: "s", DatasetVersion: "v1", RowIndex: 0, Vector: []float32{1, 0}},
		{ID: uuid.New(), SourceID: "s", DatasetVersion: "v1", RowIndex: 1, Vector: []float32{0, 1}},
		{ID: uuid.New(), SourceID: "s", DatasetVersion: "v1", RowIndex: 2, Vector: []float32{1, 1}},
		{ID: uuid.New(), SourceID: "s", DatasetVersion: "v2", RowIndex: 0, Vector: []float32{1, 0}},
	}))

	results, err := a.Search(ctx, []float32{2, 0}, 2, VectorFilters{SourceID: "s", DatasetVersion: "v1"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].RowIndex)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, 2, results[1].RowIndex)

	n, err := a.Count(ctx, VectorFilters{DatasetVersion: "v1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = a.Count(ctx, VectorFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestMemoryVectorAdapter_DimensionHandling(t *testing.T) {
	a := NewMemoryVectorAdapter()
	ctx := context.Background()

	require.NoError(t, a.Insert(ctx, []VectorEntry{{ID: uuid.New(), Vector: []float32{1, 0, 0}}}))

	err := a.Insert(ctx, []VectorEntry{{ID: uuid.New(), Vector: []float32{1, 0}}})
	assert.ErrorIs(t, err, ErrVectorDimensionMismatch)

	results, err := a.Search(ctx, []float32{1, 0}, 5, VectorFilters{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryVectorAdapter_InsertIsIdempotentAndDelete(t *testing.T) {
	a := NewMemoryVectorAdapter()
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, a.Insert(ctx, []VectorEntry{{ID: id, RowIndex: 1, Vector: []float32{1, 0}}}))
	require.NoError(t, a.Insert(ctx, []VectorEntry{{ID: id, RowIndex: 9, Vector: []float32{0, 1}}}))

	results, err := a.Search(ctx, []float32{1, 0}, 1, VectorFilters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].RowIndex)

	require.NoError(t, a.Delete(ctx, []uuid.UUID{id}))
	n, err := a.Count(ctx, VectorFilters{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSemanticIndex_SearchRows(t *testing.T) {
	ds, err := dataset.New("people", [][]string{
		{"name", "city"},
		{"Somchai", "Bangkok"},
		{"Malee", "Phuket"},
		{"Suda", "Chiang Mai"},
	}, time.Now())
	require.NoError(t, err)

	vectors := NewMemoryVectorAdapter()
	index := NewSemanticIndex(nil, embedding.NewMockClient(256), vectors, 2)
	ctx := context.Background()

	var progress []int
	require.NoError(t, index.Index(ctx, ds, func(done, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	}))
	assert.Equal(t, []int{2, 3}, progress)

	// A second pass embeds nothing.
	require.NoError(t, index.Index(ctx, ds, func(done, total int) {
		t.Fatal("dataset indexed twice")
	}))

	hits, err := index.SearchRows(ctx, ds, "name: Malee | city: Phuket", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 1, hits[0].Row)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)

	n, err := vectors.Count(ctx, VectorFilters{SourceID: "people"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

// gatedEmbedder holds batch embedding calls until release is closed once
// block is set. Single-text embedding is never held.
type gatedEmbedder struct {
	embedding.Embedder
	block   atomic.Bool
	started chan struct{}
	release chan struct{}
	batches atomic.Int32
}

func (g *gatedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	g.batches.Add(1)
	if g.block.Load() {
		select {
		case g.started <- struct{}{}:
		default:
		}
		<-g.release
	}
	return g.Embedder.Embed(ctx, texts)
}

func TestSemanticIndex_SearchWhileAnotherSnapshotIndexes(t *testing.T) {
	ctx := context.Background()
	emb := &gatedEmbedder{
		Embedder: embedding.NewMockClient(64),
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	index := NewSemanticIndex(nil, emb, NewMemoryVectorAdapter(), 10)

	ready, err := dataset.New("a", [][]string{{"name"}, {"Somchai"}, {"Malee"}}, time.Now())
	require.NoError(t, err)
	require.NoError(t, index.Index(ctx, ready, nil))

	slow, err := dataset.New("b", [][]string{{"name"}, {"Suda"}}, time.Now())
	require.NoError(t, err)
	emb.block.Store(true)

	indexed := make(chan error, 2)
	go func() { indexed <- index.Index(ctx, slow, nil) }()
	<-emb.started
	go func() { indexed <- index.Index(ctx, slow, nil) }()

	hits, err := index.SearchRows(ctx, ready, "name: Malee", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Row)

	close(emb.release)
	require.NoError(t, <-indexed)
	require.NoError(t, <-indexed)
	assert.Equal(t, int32(2), emb.batches.Load())
}

func TestRowText(t *testing.T) {
	ds, err := dataset.New("s", [][]string{{"name", "age"}, {"Somchai", " ", "extra"}}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "name: Somchai | column_3: extra", RowText(ds, 0))
}

func TestRowID_Deterministic(t *testing.T) {
	assert.Equal(t, RowID("s", "v", 1), RowID("s", "v", 1))
	assert.NotEqual(t, RowID("s", "v", 1), RowID("s", "v", 2))
	assert.NotEqual(t, RowID("s", "v", 1), RowID("s", "w", 1))
}
