// Package selection implements the Selection Service (spec §4.9): thin
// user-facing orchestration over the content/context repositories and the
// Relevance Scorer. It owns no state of its own beyond what it reads
// through those contracts. Grounded in the teacher's
// internal/tools/db/hybrid.go callers, which do the same
// load-then-score-then-filter-then-sort sequencing at the service layer
// rather than inside the scorer itself.
package selection

import (
	"context"
	"sort"

	"contextnexus/internal/core"
	"contextnexus/internal/repository"
	"contextnexus/internal/scorer"
	"contextnexus/internal/tokencount"
)

const (
	suggestMinScore     = 0.1
	suggestDefaultLimit = 10
)

// SortBy names a suggest() ordering.
type SortBy string

const (
	SortByRelevance SortBy = "relevance"
	SortByRecency   SortBy = "recency"
)

// Suggestion is one scored candidate returned by Suggest.
type Suggestion struct {
	Content   core.ContentItem
	Relevance float64
}

// SuggestOptions configures Suggest; MaxItems defaults to 10 when zero.
type SuggestOptions struct {
	SortBy   SortBy
	MaxItems int
}

// TypeBreakdown is one content type's share of a context's token budget.
type TypeBreakdown struct {
	Count  int
	Tokens int
}

// Status is the response shape for status(contextId).
type Status struct {
	ContextID   string
	TotalTokens int
	TokenLimit  int
	ItemCount   int
	ByType      map[core.ContentType]TypeBreakdown
}

// Service implements the Selection Service operations.
type Service struct {
	contents repository.ContentRepository
	contexts repository.ContextRepository
	scorer   *scorer.Scorer
}

// New builds a Service over the given repositories and scorer.
func New(contents repository.ContentRepository, contexts repository.ContextRepository, sc *scorer.Scorer) *Service {
	return &Service{contents: contents, contexts: contexts, scorer: sc}
}

// Status returns token accounting for contextID, broken down by content
// type, against the context's configured or default token limit.
func (s *Service) Status(ctx context.Context, contextID string) (Status, error) {
	c, err := s.contexts.FindByID(ctx, contextID)
	if err != nil {
		return Status{}, err
	}

	out := Status{
		ContextID:  contextID,
		TokenLimit: c.TokenLimit(),
		ItemCount:  len(c.Items),
		ByType:     map[core.ContentType]TypeBreakdown{},
	}
	for _, edge := range c.Items {
		item, err := s.contents.GetWithBody(ctx, edge.ContentID)
		if err != nil {
			continue
		}
		tokens := tokenCountOf(item)
		out.TotalTokens += tokens
		bd := out.ByType[item.Type]
		bd.Count++
		bd.Tokens += tokens
		out.ByType[item.Type] = bd
	}
	return out, nil
}

func tokenCountOf(item core.ContentItem) int {
	if item.Body == "" {
		return 0
	}
	return tokencount.Count(item.Body)
}

// Add attaches contentID to contextID with SelectedByUser true and the
// optional explicit relevance, verifying both exist first.
func (s *Service) Add(ctx context.Context, contextID, contentID string, relevance *float64) error {
	if _, err := s.contexts.FindByID(ctx, contextID); err != nil {
		return err
	}
	if _, err := s.contents.FindByID(ctx, contentID); err != nil {
		return err
	}
	return s.contexts.AddItem(ctx, contextID, contentID, core.ContextItemEdge{
		ContentID:      contentID,
		Relevance:      relevance,
		SelectedByUser: true,
	})
}

// Remove detaches contentID from contextID. Idempotent: removing an item
// not present in the context is not an error.
func (s *Service) Remove(ctx context.Context, contextID, contentID string) error {
	if _, err := s.contexts.FindByID(ctx, contextID); err != nil {
		return err
	}
	return s.contexts.RemoveItem(ctx, contextID, contentID)
}

// SetRelevance overrides the manual relevance for an item already in a
// context. r must be in [0,1].
func (s *Service) SetRelevance(ctx context.Context, contextID, contentID string, r float64) error {
	if r < 0 || r > 1 {
		return core.Validation("relevance", "must be between 0 and 1")
	}
	items, err := s.contexts.ListItems(ctx, contextID)
	if err != nil {
		return err
	}
	found := false
	for _, edge := range items {
		if edge.ContentID == contentID {
			found = true
			break
		}
	}
	if !found {
		return core.NotFound("context item", contentID)
	}
	return s.contexts.UpdateEdgeMetadata(ctx, contextID, contentID, repository.EdgePatch{Relevance: &r})
}

// Suggest lists project content not already present in contextID, scores
// it against query, filters to score > 0.1, sorts per opts.SortBy, and
// limits to opts.MaxItems (default 10).
func (s *Service) Suggest(ctx context.Context, projectID, query, contextID string, opts SuggestOptions) ([]Suggestion, error) {
	all, err := s.contents.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	excluded := map[string]struct{}{}
	if contextID != "" {
		items, err := s.contexts.ListItems(ctx, contextID)
		if err != nil {
			return nil, err
		}
		for _, edge := range items {
			excluded[edge.ContentID] = struct{}{}
		}
	}

	candidates := make([]core.ContentItem, 0, len(all))
	for _, item := range all {
		if _, skip := excluded[item.ID]; !skip {
			candidates = append(candidates, item)
		}
	}

	scores := s.scorer.BatchScore(ctx, candidates, query, scorer.Factors{})

	suggestions := make([]Suggestion, 0, len(candidates))
	for _, item := range candidates {
		score := scores[item.ID]
		if score > suggestMinScore {
			suggestions = append(suggestions, Suggestion{Content: item, Relevance: score})
		}
	}

	switch opts.SortBy {
	case SortByRecency:
		sort.SliceStable(suggestions, func(i, j int) bool {
			return suggestions[i].Content.CreatedAt.After(suggestions[j].Content.CreatedAt)
		})
	default:
		sort.SliceStable(suggestions, func(i, j int) bool {
			return suggestions[i].Relevance > suggestions[j].Relevance
		})
	}

	limit := opts.MaxItems
	if limit <= 0 {
		limit = suggestDefaultLimit
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

// FindSimilar delegates to the content repository's vector-nearest-neighbor
// query.
func (s *Service) FindSimilar(ctx context.Context, contentID string, limit int, projectID string) ([]core.ContentItem, error) {
	return s.contents.FindSimilar(ctx, contentID, limit, projectID)
}
