package local

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

var _ domain.VectorStore = (*Storage)(nil)
var _ domain.ChunkLister = (*Storage)(nil)

func TestStorage_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	s, err := NewStorage(dir)
	require.NoError(t, err)
	assert.False(t, s.Exists())

	require.NoError(t, s.Init(ctx, 3))
	chunks := []domain.Chunk{
		{DocumentID: "d1", ChunkID: "d1:0", Source: "data/a.txt", Index: 0, Text: "alpha"},
		{DocumentID: "d1", ChunkID: "d1:1", Source: "data/a.txt", Index: 1, Text: "beta"},
	}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float32{{1, 0, 0}, {0, 1, 0.5}}))
	assert.True(t, s.Exists())
	assert.Equal(t, filepath.Join(dir, IndexFileName), s.Path())

	reopened, err := NewStorage(dir)
	require.NoError(t, err)
	res, err := reopened.Search(ctx, []float32{0, 1, 0.5}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, chunks[1], res[0].Chunk)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)

	all, err := reopened.Chunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, chunks, all)
}

func TestStorage_InitResetsIndex(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ChunkID: "x:0", DocumentID: "x"}}, [][]float32{{1, 1}}))
	require.NoError(t, s.Init(ctx, 4))

	all, err := s.Chunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.ErrorIs(t, s.Upsert(ctx, []domain.Chunk{{ChunkID: "y:0"}}, [][]float32{{1, 1}}), vectorstore.ErrDimension)
}

func TestStorage_MissingIndex(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	_, err = s.Search(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrIndexAbsent)
	assert.NoError(t, s.Clear(ctx))
	assert.False(t, s.Exists())
}

func TestStorage_Clear(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{{ChunkID: "a:0"}}, [][]float32{{1}}))
	require.NoError(t, s.Clear(ctx))

	res, err := s.Search(ctx, []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestStorage_ReplaceIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	var _ vectorstore.Replacer = s

	old := []domain.Chunk{{DocumentID: "a", ChunkID: "a:0", Source: "a.txt", Text: "alpha"}}
	require.NoError(t, s.Replace(ctx, 2, old, [][]float32{{1, 0}}))

	next := []domain.Chunk{
		{DocumentID: "b", ChunkID: "b:0", Source: "b.txt", Text: "beta"},
		{DocumentID: "b", ChunkID: "b:1", Source: "b.txt", Index: 1, Text: "gamma"},
	}
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Replace(canceled, 3, next, [][]float32{{1, 0, 0}, {0, 1, 0}}), context.Canceled)
	assert.ErrorIs(t, s.Replace(ctx, 3, next, [][]float32{{1, 0, 0}, {0, 1}}), vectorstore.ErrDimension)
	assert.ErrorIs(t, s.Replace(ctx, 3, next, [][]float32{{1, 0, 0}}), vectorstore.ErrLength)

	all, err := s.Chunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, old, all)

	require.NoError(t, s.Replace(ctx, 3, next, [][]float32{{1, 0, 0}, {0, 1, 0}}))
	res, err := s.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, next[1], res[0].Chunk)
}
