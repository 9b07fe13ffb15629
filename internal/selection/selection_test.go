package selection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contextnexus/internal/core"
	"contextnexus/internal/repository"
	"contextnexus/internal/scorer"
)

type fakeContentRepo struct {
	items   map[string]core.ContentItem
	project []core.ContentItem
}

func (f *fakeContentRepo) FindByID(_ context.Context, id string) (core.ContentItem, error) {
	it, ok := f.items[id]
	if !ok {
		return core.ContentItem{}, core.NotFound("content", id)
	}
	return it, nil
}
func (f *fakeContentRepo) GetWithBody(ctx context.Context, id string) (core.ContentItem, error) {
	return f.FindByID(ctx, id)
}
func (f *fakeContentRepo) ListByProject(context.Context, string) ([]core.ContentItem, error) {
	return f.project, nil
}
func (f *fakeContentRepo) FindSimilar(context.Context, string, int, string) ([]core.ContentItem, error) {
	return f.project, nil
}

type fakeContextRepo struct {
	ctx   core.Context
	edges []core.ContextItemEdge

	added    []string
	removed  []string
	patched  map[string]repository.EdgePatch
}

func (f *fakeContextRepo) FindByID(_ context.Context, id string) (core.Context, error) {
	if id != f.ctx.ID {
		return core.Context{}, core.NotFound("context", id)
	}
	return f.ctx, nil
}
func (f *fakeContextRepo) ListItems(context.Context, string) ([]core.ContextItemEdge, error) {
	return f.edges, nil
}
func (f *fakeContextRepo) AddItem(_ context.Context, _ string, contentID string, edge core.ContextItemEdge) error {
	f.added = append(f.added, contentID)
	f.edges = append(f.edges, edge)
	return nil
}
func (f *fakeContextRepo) RemoveItem(_ context.Context, _ string, contentID string) error {
	f.removed = append(f.removed, contentID)
	return nil
}
func (f *fakeContextRepo) UpdateEdgeMetadata(_ context.Context, _ string, contentID string, patch repository.EdgePatch) error {
	if f.patched == nil {
		f.patched = map[string]repository.EdgePatch{}
	}
	f.patched[contentID] = patch
	return nil
}

type noVectors struct{}

func (noVectors) FindEmbedding(context.Context, string) ([]float32, bool, error) {
	return nil, false, nil
}
func (noVectors) Similarity(context.Context, string, string) (float64, error) { return 0.5, nil }

func buildService(contents *fakeContentRepo, contexts *fakeContextRepo) *Service {
	sc := scorer.New(noVectors{}, nil)
	return New(contents, contexts, sc)
}

func TestStatusAggregatesTokensByType(t *testing.T) {
	contents := &fakeContentRepo{items: map[string]core.ContentItem{
		"A": {ID: "A", Type: core.ContentText, Body: "aaaaaaaa"}, // 8 chars -> 2 tokens
		"B": {ID: "B", Type: core.ContentCode, Body: "bbbbbbbbbbbbbbbb"}, // 16 chars -> 4 tokens
	}}
	contexts := &fakeContextRepo{
		ctx: core.Context{ID: "ctx1", Metadata: map[string]string{"tokenLimit": "500"}},
		edges: []core.ContextItemEdge{
			{ContentID: "A"}, {ContentID: "B"},
		},
	}
	svc := buildService(contents, contexts)

	status, err := svc.Status(context.Background(), "ctx1")
	require.NoError(t, err)
	require.Equal(t, 500, status.TokenLimit)
	require.Equal(t, 2, status.ItemCount)
	require.Equal(t, 6, status.TotalTokens)
	require.Equal(t, 2, status.ByType[core.ContentText].Tokens)
	require.Equal(t, 4, status.ByType[core.ContentCode].Tokens)
}

func TestStatusMissingContextIsNotFound(t *testing.T) {
	contents := &fakeContentRepo{items: map[string]core.ContentItem{}}
	contexts := &fakeContextRepo{ctx: core.Context{ID: "ctx1"}}
	svc := buildService(contents, contexts)

	_, err := svc.Status(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.ErrorOf(err))
}

func TestAddVerifiesBothExistAndMarksSelectedByUser(t *testing.T) {
	contents := &fakeContentRepo{items: map[string]core.ContentItem{"A": {ID: "A"}}}
	contexts := &fakeContextRepo{ctx: core.Context{ID: "ctx1"}}
	svc := buildService(contents, contexts)

	r := 0.8
	err := svc.Add(context.Background(), "ctx1", "A", &r)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, contexts.added)
	require.True(t, contexts.edges[0].SelectedByUser)
	require.NotNil(t, contexts.edges[0].Relevance)
	require.Equal(t, 0.8, *contexts.edges[0].Relevance)
}

func TestAddMissingContentIsNotFound(t *testing.T) {
	contents := &fakeContentRepo{items: map[string]core.ContentItem{}}
	contexts := &fakeContextRepo{ctx: core.Context{ID: "ctx1"}}
	svc := buildService(contents, contexts)

	err := svc.Add(context.Background(), "ctx1", "missing", nil)
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.ErrorOf(err))
	require.Empty(t, contexts.added)
}

func TestRemoveIsIdempotent(t *testing.T) {
	contents := &fakeContentRepo{}
	contexts := &fakeContextRepo{ctx: core.Context{ID: "ctx1"}}
	svc := buildService(contents, contexts)

	require.NoError(t, svc.Remove(context.Background(), "ctx1", "not-present"))
	require.NoError(t, svc.Remove(context.Background(), "ctx1", "not-present"))
	require.Equal(t, []string{"not-present", "not-present"}, contexts.removed)
}

func TestSetRelevanceValidatesRangeAndMembership(t *testing.T) {
	contents := &fakeContentRepo{}
	contexts := &fakeContextRepo{
		ctx:   core.Context{ID: "ctx1"},
		edges: []core.ContextItemEdge{{ContentID: "A"}},
	}
	svc := buildService(contents, contexts)

	err := svc.SetRelevance(context.Background(), "ctx1", "A", 1.5)
	require.Error(t, err)
	require.Equal(t, core.KindValidation, core.ErrorOf(err))

	err = svc.SetRelevance(context.Background(), "ctx1", "B", 0.5)
	require.Error(t, err)
	require.Equal(t, core.KindNotFound, core.ErrorOf(err))

	err = svc.SetRelevance(context.Background(), "ctx1", "A", 0.5)
	require.NoError(t, err)
	require.Equal(t, 0.5, *contexts.patched["A"].Relevance)
}

func TestSuggestFiltersExcludesAndLimits(t *testing.T) {
	now := time.Now()
	contents := &fakeContentRepo{project: []core.ContentItem{
		{ID: "A", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "B", CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "C", CreatedAt: now},
	}}
	contexts := &fakeContextRepo{
		ctx:   core.Context{ID: "ctx1"},
		edges: []core.ContextItemEdge{{ContentID: "B"}},
	}
	svc := buildService(contents, contexts)

	out, err := svc.Suggest(context.Background(), "proj1", "query", "ctx1", SuggestOptions{SortBy: SortByRecency, MaxItems: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "C", out[0].Content.ID)
}

func TestSuggestDefaultsLimitToTen(t *testing.T) {
	items := make([]core.ContentItem, 0, 15)
	for i := 0; i < 15; i++ {
		items = append(items, core.ContentItem{ID: string(rune('a' + i))})
	}
	contents := &fakeContentRepo{project: items}
	contexts := &fakeContextRepo{ctx: core.Context{ID: "ctx1"}}
	svc := buildService(contents, contexts)

	out, err := svc.Suggest(context.Background(), "proj1", "query", "", SuggestOptions{})
	require.NoError(t, err)
	require.Len(t, out, 10)
}

func TestFindSimilarDelegatesToContentRepository(t *testing.T) {
	contents := &fakeContentRepo{project: []core.ContentItem{{ID: "A"}, {ID: "B"}}}
	contexts := &fakeContextRepo{ctx: core.Context{ID: "ctx1"}}
	svc := buildService(contents, contexts)

	out, err := svc.FindSimilar(context.Background(), "A", 5, "proj1")
	require.NoError(t, err)
	require.Len(t, out, 2)
}
