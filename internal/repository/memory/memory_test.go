package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"contextnexus/internal/core"
	"contextnexus/internal/repository"
)

type constantEmbedder struct{ vector []float32 }

func (c constantEmbedder) Embed(context.Context, string) ([]float32, error) {
	return c.vector, nil
}

func TestContentStoreFindByIDNotFound(t *testing.T) {
	s := NewContentStore()
	_, err := s.FindByID(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.ErrorOf(err))
}

func TestContentStoreListByProjectSorted(t *testing.T) {
	s := NewContentStore()
	s.Put(core.ContentItem{ID: "b", ProjectID: "p1"})
	s.Put(core.ContentItem{ID: "a", ProjectID: "p1"})
	s.Put(core.ContentItem{ID: "c", ProjectID: "p2"})

	out, err := s.ListByProject(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].ID)
	require.Equal(t, "b", out[1].ID)
}

func TestContentStoreFindSimilarRanksByOverlap(t *testing.T) {
	s := NewContentStore()
	s.Put(core.ContentItem{ID: "target", ProjectID: "p1", Body: "alpha beta gamma"})
	s.Put(core.ContentItem{ID: "close", ProjectID: "p1", Body: "alpha beta delta"})
	s.Put(core.ContentItem{ID: "far", ProjectID: "p1", Body: "zeta eta theta"})

	out, err := s.FindSimilar(context.Background(), "target", 5, "p1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "close", out[0].ID)
	require.Equal(t, "far", out[1].ID)
}

func TestContextStoreAddItemUpsertsEdge(t *testing.T) {
	s := NewContextStore()
	s.Put(core.Context{ID: "ctx1"})

	err := s.AddItem(context.Background(), "ctx1", "A", core.ContextItemEdge{SelectedByUser: true})
	require.NoError(t, err)

	r := 0.7
	err = s.AddItem(context.Background(), "ctx1", "A", core.ContextItemEdge{Relevance: &r})
	require.NoError(t, err)

	items, err := s.ListItems(context.Background(), "ctx1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 0.7, *items[0].Relevance)
}

func TestContextStoreRemoveItemIdempotent(t *testing.T) {
	s := NewContextStore()
	s.Put(core.Context{ID: "ctx1", Items: []core.ContextItemEdge{{ContentID: "A"}}})

	require.NoError(t, s.RemoveItem(context.Background(), "ctx1", "A"))
	require.NoError(t, s.RemoveItem(context.Background(), "ctx1", "A"))

	items, err := s.ListItems(context.Background(), "ctx1")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestContextStoreUpdateEdgeMetadataMissingItemNotFound(t *testing.T) {
	s := NewContextStore()
	s.Put(core.Context{ID: "ctx1"})

	r := 0.5
	err := s.UpdateEdgeMetadata(context.Background(), "ctx1", "missing", repository.EdgePatch{Relevance: &r})
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.ErrorOf(err))
}

func TestVectorStoreFindEmbeddingAbsent(t *testing.T) {
	s := NewVectorStore(constantEmbedder{})
	_, ok, err := s.FindEmbedding(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVectorStoreSimilarityIdenticalVectorsIsOne(t *testing.T) {
	s := NewVectorStore(constantEmbedder{vector: []float32{1, 0, 0}})
	s.Upsert("A", []float32{1, 0, 0})

	score, err := s.Similarity(context.Background(), "A", "anything")
	require.NoError(t, err)
	require.InDelta(t, 1.0, score, 1e-9)
}

func TestVectorStoreSimilarityOrthogonalIsZero(t *testing.T) {
	s := NewVectorStore(constantEmbedder{vector: []float32{0, 1, 0}})
	s.Upsert("A", []float32{1, 0, 0})

	score, err := s.Similarity(context.Background(), "A", "anything")
	require.NoError(t, err)
	require.InDelta(t, 0.0, score, 1e-9)
}
