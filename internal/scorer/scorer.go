// Package scorer computes the relevance of a content item to a query by
// combining vector similarity with content-type weight, recency,
// user-interaction, and manual-relevance signals. Grounded in the teacher
// repo's weighted-fusion style (internal/tools/db/hybrid.go's
// alpha*bm25+beta*cosine composition, generalized here to the spec's
// five-signal weighting) and its query-embedding cache
// (internal/sefii/engine.go).
package scorer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"contextnexus/internal/core"
	"contextnexus/internal/repository"
)

// batchSize is the parallel fan-out width for batchScore, per spec §4.3.
const batchSize = 20

// DefaultTypeWeights is the content-type weight table §4.3 defaults to.
var DefaultTypeWeights = map[core.ContentType]float64{
	core.ContentText:  1.0,
	core.ContentCode:  1.2,
	core.ContentImage: 0.7,
}

// Factors carries the caller-supplied and per-item signals that feed the
// scoring composition. TypeWeights, when nil, falls back to
// DefaultTypeWeights.
type Factors struct {
	TypeWeights map[core.ContentType]float64

	// Recency and Interaction are keyed by content id and default to 1.0
	// for an id absent from the map (the caller did not supply it); the
	// recency/interaction methods do the lookup. ManualRelevance and
	// SelectedByUser are keyed by content id the same way.
	Recency         map[string]float64
	Interaction     map[string]float64
	ManualRelevance map[string]float64
	SelectedByUser  map[string]bool
}

func (f Factors) recency(id string) float64 {
	if v, ok := f.Recency[id]; ok {
		return clamp01(v)
	}
	return 1.0
}

func (f Factors) interaction(id string) float64 {
	if v, ok := f.Interaction[id]; ok {
		return clamp01(v)
	}
	return 1.0
}

func (f Factors) manual(id string) (float64, bool) {
	v, ok := f.ManualRelevance[id]
	return clamp01(v), ok
}

func (f Factors) selectedByUser(id string) bool {
	return f.SelectedByUser[id]
}

func (f Factors) typeWeight(ct core.ContentType) float64 {
	if f.TypeWeights != nil {
		if w, ok := f.TypeWeights[ct]; ok {
			return w
		}
	}
	if w, ok := DefaultTypeWeights[ct]; ok {
		return w
	}
	return 1.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Scorer produces relevance scores for (content item, query) pairs. It
// consumes a VectorRepository for stored-embedding similarity; the
// query-embedding cache described in spec §9 (so cost is O(items)
// similarity computations rather than O(items) embeddings) lives inside
// the VectorRepository implementation (see internal/cache for the
// Redis-backed query-embedding cache wrapping it).
type Scorer struct {
	vectors repository.VectorRepository
	onError func(contentID string, err error)
}

// New builds a Scorer. onError, if non-nil, is invoked for every per-item
// scoring failure that was downgraded to the neutral 0.5 score instead of
// being raised; pass a logging hook here.
func New(vectors repository.VectorRepository, onError func(contentID string, err error)) *Scorer {
	return &Scorer{vectors: vectors, onError: onError}
}

// Score returns a single item's relevance in [0,1] per the §4.3
// composition rules: pinned items score 0.9 flat; items with a manual
// relevance blend 0.7*manual+0.3*vector-similarity; everything else blends
// all four remaining signals.
func (s *Scorer) Score(ctx context.Context, content core.ContentItem, query string, f Factors) (float64, error) {
	v, err := s.similarity(ctx, content.ID, query)
	if err != nil {
		return 0, err
	}
	return s.compose(content, f, v), nil
}

// BatchScore scores many items against the same query, processing them in
// parallel batches of 20 (spec §4.3). A per-item failure yields the
// neutral score 0.5 and is reported via onError rather than aborting the
// whole batch. The returned mapping is deterministic: every input id is
// present regardless of completion order.
func (s *Scorer) BatchScore(ctx context.Context, items []core.ContentItem, query string, f Factors) map[string]float64 {
	out := make(map[string]float64, len(items))
	var mu sync.Mutex

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, item := range batch {
			item := item
			g.Go(func() error {
				score, err := s.Score(gctx, item, query, f)
				if err != nil {
					if s.onError != nil {
						s.onError(item.ID, err)
					}
					score = 0.5
				}
				mu.Lock()
				out[item.ID] = score
				mu.Unlock()
				return nil
			})
		}
		// errgroup.Wait only returns an error if a Go func returned one;
		// per-item failures are swallowed into the neutral score above, so
		// this never aborts the batch.
		_ = g.Wait()
	}
	return out
}

// similarity resolves vector similarity for one item, falling back to the
// spec's 0.5 default when the item carries no stored embedding.
func (s *Scorer) similarity(ctx context.Context, contentID, query string) (float64, error) {
	if s.vectors == nil {
		return 0.5, nil
	}
	_, ok, err := s.vectors.FindEmbedding(ctx, contentID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0.5, nil
	}
	v, err := s.vectors.Similarity(ctx, contentID, query)
	if err != nil {
		return 0, err
	}
	return clamp01(v), nil
}

// compose applies the three-rule, first-match composition from §4.3.
func (s *Scorer) compose(content core.ContentItem, f Factors, v float64) float64 {
	if f.selectedByUser(content.ID) {
		return 0.9
	}
	if m, ok := f.manual(content.ID); ok {
		return clamp01(0.7*m + 0.3*v)
	}
	w := f.typeWeight(content.Type)
	r := f.recency(content.ID)
	u := f.interaction(content.ID)
	return clamp01(0.6*v + 0.2*w + 0.1*r + 0.1*u)
}
