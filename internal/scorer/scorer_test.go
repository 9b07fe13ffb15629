package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"contextnexus/internal/core"
)

// fakeVectors is a minimal repository.VectorRepository stand-in.
type fakeVectors struct {
	embeddings map[string][]float32
	sims       map[string]float64
	failOn     string
}

func (f *fakeVectors) FindEmbedding(_ context.Context, id string) ([]float32, bool, error) {
	v, ok := f.embeddings[id]
	return v, ok, nil
}

func (f *fakeVectors) Similarity(_ context.Context, id, _ string) (float64, error) {
	if id == f.failOn {
		return 0, errors.New("boom")
	}
	return f.sims[id], nil
}

func TestScorePinnedIsFlat(t *testing.T) {
	v := &fakeVectors{embeddings: map[string][]float32{"a": {1}}, sims: map[string]float64{"a": 0.1}}
	s := New(v, nil)
	item := core.ContentItem{ID: "a", Type: core.ContentText}
	score, err := s.Score(context.Background(), item, "q", Factors{SelectedByUser: map[string]bool{"a": true}})
	require.NoError(t, err)
	require.Equal(t, 0.9, score)
}

func TestScoreManualBlendsWithVector(t *testing.T) {
	v := &fakeVectors{embeddings: map[string][]float32{"a": {1}}, sims: map[string]float64{"a": 0.4}}
	s := New(v, nil)
	item := core.ContentItem{ID: "a", Type: core.ContentText}
	score, err := s.Score(context.Background(), item, "q", Factors{ManualRelevance: map[string]float64{"a": 1.0}})
	require.NoError(t, err)
	require.InDelta(t, 0.7*1.0+0.3*0.4, score, 1e-9)
}

func TestScoreDefaultNoEmbeddingUsesHalf(t *testing.T) {
	v := &fakeVectors{embeddings: map[string][]float32{}}
	s := New(v, nil)
	item := core.ContentItem{ID: "a", Type: core.ContentCode}
	score, err := s.Score(context.Background(), item, "q", Factors{})
	require.NoError(t, err)
	// v=0.5, w=1.2, r=1, u=1 -> 0.6*0.5+0.2*1.2+0.1+0.1 = 0.74
	require.InDelta(t, 0.74, score, 1e-9)
}

func TestBatchScoreNeutralOnFailure(t *testing.T) {
	v := &fakeVectors{
		embeddings: map[string][]float32{"a": {1}, "b": {1}},
		sims:       map[string]float64{"a": 0.9},
		failOn:     "b",
	}
	var failed []string
	s := New(v, func(id string, err error) { failed = append(failed, id) })
	items := []core.ContentItem{{ID: "a", Type: core.ContentText}, {ID: "b", Type: core.ContentText}}
	out := s.BatchScore(context.Background(), items, "q", Factors{})
	require.Len(t, out, 2)
	require.Equal(t, 0.5, out["b"])
	require.Equal(t, []string{"b"}, failed)
}

func TestBatchScoreIdempotent(t *testing.T) {
	v := &fakeVectors{embeddings: map[string][]float32{"a": {1}}, sims: map[string]float64{"a": 0.3}}
	s := New(v, nil)
	items := []core.ContentItem{{ID: "a", Type: core.ContentText}}
	first := s.BatchScore(context.Background(), items, "q", Factors{})
	second := s.BatchScore(context.Background(), items, "q", Factors{})
	require.Equal(t, first, second)
}

func TestBatchScoreLargeBatchAllPresent(t *testing.T) {
	embeddings := map[string][]float32{}
	sims := map[string]float64{}
	items := make([]core.ContentItem, 0, 45)
	for i := 0; i < 45; i++ {
		id := string(rune('a' + i%26))
		items = append(items, core.ContentItem{ID: id, Type: core.ContentText})
		embeddings[id] = []float32{1}
		sims[id] = 0.5
	}
	v := &fakeVectors{embeddings: embeddings, sims: sims}
	s := New(v, nil)
	out := s.BatchScore(context.Background(), items, "q", Factors{})
	require.Len(t, out, len(embeddings))
}
