// Package optimizer implements the Context Optimizer (spec §4.4): it
// composes the token counter, chunker, relevance scorer, and compressor
// under a hard token budget to produce an OptimizedContext, preserving
// user-pinned items and applying opportunistic compression when the
// budget tightens. Grounded in the teacher's internal/rag/service.go
// staged-pipeline orchestration (preprocess → score → chunk → assemble)
// and its functional-options construction style.
package optimizer

import (
	"context"
	"errors"
	"sort"

	"contextnexus/internal/chunk"
	"contextnexus/internal/compressor"
	"contextnexus/internal/core"
	"contextnexus/internal/repository"
	"contextnexus/internal/scorer"
	"contextnexus/internal/tokencount"
)

const (
	defaultReserveTokens           = 800
	defaultMaxContentItems         = 50
	defaultRelevanceThreshold      = 0.1
	defaultMaxChunkTokens          = 1000
	defaultCompressionThresholdPct = 0.7
	highRelevanceCutoff            = 0.5
	compressionTargetPct           = 0.7
)

// Options carries the overridable knobs from spec §4.4's option table. A
// nil pointer means "use the default"; resolve fills them in against a
// budget.
type Options struct {
	MaxTokens            *int
	ReserveTokens         *int
	IncludeUserSelected   *bool
	MaxContentItems       *int
	RelevanceThreshold    *float64
	DefaultChunkStrategy  core.ChunkStrategy
	ChunkByContentType    *bool
	MaxChunkTokens        *int
	EnableCompression     *bool
	CompressionThreshold  *float64
}

// resolved is Options with every field defaulted and budget-derived values
// computed, used internally once per Optimize call.
type resolved struct {
	maxTokens            int
	reserveTokens        int
	includeUserSelected  bool
	maxContentItems      int
	relevanceThreshold   float64
	defaultChunkStrategy core.ChunkStrategy
	chunkByContentType   bool
	maxChunkTokens       int
	enableCompression    bool
	compressionThreshold float64
}

func (o Options) resolve(budget int) resolved {
	r := resolved{
		maxTokens:            budget,
		reserveTokens:        defaultReserveTokens,
		includeUserSelected:  true,
		maxContentItems:      defaultMaxContentItems,
		relevanceThreshold:   defaultRelevanceThreshold,
		defaultChunkStrategy: core.StrategyParagraph,
		chunkByContentType:   true,
		maxChunkTokens:       defaultMaxChunkTokens,
		enableCompression:    true,
	}
	r.compressionThreshold = defaultCompressionThresholdPct * float64(budget)

	if o.MaxTokens != nil {
		r.maxTokens = *o.MaxTokens
	}
	if o.ReserveTokens != nil {
		r.reserveTokens = *o.ReserveTokens
	}
	if o.IncludeUserSelected != nil {
		r.includeUserSelected = *o.IncludeUserSelected
	}
	if o.MaxContentItems != nil {
		r.maxContentItems = *o.MaxContentItems
	}
	if o.RelevanceThreshold != nil {
		r.relevanceThreshold = *o.RelevanceThreshold
	}
	if o.DefaultChunkStrategy != "" {
		r.defaultChunkStrategy = o.DefaultChunkStrategy
	}
	if o.ChunkByContentType != nil {
		r.chunkByContentType = *o.ChunkByContentType
	}
	if o.MaxChunkTokens != nil {
		r.maxChunkTokens = *o.MaxChunkTokens
	}
	if o.EnableCompression != nil {
		r.enableCompression = *o.EnableCompression
	}
	if o.CompressionThreshold != nil {
		r.compressionThreshold = *o.CompressionThreshold
	}
	return r
}

func (r resolved) strategyFor(ct core.ContentType) core.ChunkStrategy {
	if r.chunkByContentType {
		return core.DefaultStrategyFor(ct)
	}
	return r.defaultChunkStrategy
}

// Logger receives recoverable per-call diagnostics (degraded-mode scoring,
// skipped items) without aborting the optimization.
type Logger interface {
	Warn(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Optimizer composes the Context, Content, and Vector repositories with a
// Scorer to produce OptimizedContexts. It holds no mutable state of its
// own: every call operates on request-local values (spec §5).
type Optimizer struct {
	contents repository.ContentRepository
	contexts repository.ContextRepository
	scorer   *scorer.Scorer
	log      Logger
}

// New builds an Optimizer. log may be nil, in which case diagnostics are
// discarded.
func New(contents repository.ContentRepository, contexts repository.ContextRepository, sc *scorer.Scorer, log Logger) *Optimizer {
	if log == nil {
		log = noopLogger{}
	}
	return &Optimizer{contents: contents, contexts: contexts, scorer: sc, log: log}
}

type candidate struct {
	edge  core.ContextItemEdge
	item  core.ContentItem
	score float64
}

// Optimize runs the full selection/chunk/compress pipeline for one
// (contextId, query, budget) request.
func (o *Optimizer) Optimize(ctx context.Context, contextID, query string, budget int, opts Options) (core.OptimizedContext, error) {
	r := opts.resolve(budget)
	if r.maxTokens-r.reserveTokens < 0 {
		return core.OptimizedContext{}, core.Validation("budget", "budget must be at least reserveTokens")
	}

	ctxRecord, err := o.contexts.FindByID(ctx, contextID)
	if err != nil {
		if isCancelled(ctx) {
			return core.OptimizedContext{}, core.Cancelled(err)
		}
		return core.OptimizedContext{}, core.NotFound("context", contextID)
	}
	_ = ctxRecord

	edges, err := o.contexts.ListItems(ctx, contextID)
	if err != nil {
		if isCancelled(ctx) {
			return core.OptimizedContext{}, core.Cancelled(err)
		}
		return core.OptimizedContext{}, err
	}
	if len(edges) == 0 {
		return core.OptimizedContext{Query: query, Items: []core.OptimizedContentItem{}}, nil
	}

	candidates := o.loadCandidates(ctx, edges)
	if len(candidates) == 0 {
		return core.OptimizedContext{Query: query, Items: []core.OptimizedContentItem{}, OriginalContentCount: len(edges)}, nil
	}

	scores := o.scoreCandidates(ctx, candidates, query, r)
	for i := range candidates {
		candidates[i].score = scores[candidates[i].item.ID]
	}

	kept := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.score >= r.relevanceThreshold {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return core.OptimizedContext{Query: query, Items: []core.OptimizedContentItem{}, OriginalContentCount: len(edges)}, nil
	}

	sort.SliceStable(kept, func(i, j int) bool {
		pi := kept[i].edge.SelectedByUser && r.includeUserSelected
		pj := kept[j].edge.SelectedByUser && r.includeUserSelected
		if pi != pj {
			return pi
		}
		return kept[i].score > kept[j].score
	})

	return o.selectAndChunk(ctx, query, kept, r, len(edges)), nil
}

func (o *Optimizer) loadCandidates(ctx context.Context, edges []core.ContextItemEdge) []candidate {
	out := make([]candidate, 0, len(edges))
	for _, e := range edges {
		item, err := o.contents.FindByID(ctx, e.ContentID)
		if err != nil {
			o.log.Warn("optimizer: skipping item, load failed", "contentId", e.ContentID, "err", err)
			continue
		}
		out = append(out, candidate{edge: e, item: item})
	}
	return out
}

// scoreCandidates calls the Scorer in batch, falling back to the neutral
// 0.5 score for every item (degraded mode) if the batch call itself
// panics, rather than for individual items (which BatchScore already
// handles internally).
func (o *Optimizer) scoreCandidates(ctx context.Context, candidates []candidate, query string, r resolved) (scores map[string]float64) {
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Warn("optimizer: scorer batch failed, degraded mode", "panic", rec)
			scores = map[string]float64{}
			for _, c := range candidates {
				scores[c.item.ID] = 0.5
			}
		}
	}()

	items := make([]core.ContentItem, len(candidates))
	f := scorer.Factors{
		SelectedByUser:  map[string]bool{},
		ManualRelevance: map[string]float64{},
	}
	for i, c := range candidates {
		items[i] = c.item
		if c.edge.SelectedByUser {
			f.SelectedByUser[c.item.ID] = true
		}
		if c.edge.Relevance != nil {
			f.ManualRelevance[c.item.ID] = *c.edge.Relevance
		}
	}
	return o.scorer.BatchScore(ctx, items, query, f)
}

// selectAndChunk runs steps 4-6 of the §4.4 algorithm: greedy token-budget
// packing with chunking and one opportunistic compression pass.
func (o *Optimizer) selectAndChunk(ctx context.Context, query string, kept []candidate, r resolved, originalCount int) core.OptimizedContext {
	availableTokens := r.maxTokens - r.reserveTokens
	usedTokens := 0
	var selected []core.OptimizedContentItem
	compressionApplied := false

	for _, c := range kept {
		if len(selected) >= r.maxContentItems {
			break
		}

		item := c.item
		if item.Body == "" {
			body, err := o.contents.GetWithBody(ctx, item.ID)
			if err != nil {
				o.log.Warn("optimizer: skipping item, body load failed", "contentId", item.ID, "err", err)
				continue
			}
			item = body
		}

		fragments := fragmentsFor(item, r)

		for fi, frag := range fragments {
			if usedTokens+frag.Tokens <= availableTokens {
				selected = append(selected, toOptimized(item, frag, c.score, fi, len(fragments)))
				usedTokens += frag.Tokens
				continue
			}

			if r.enableCompression && !compressionApplied && float64(usedTokens) > r.compressionThreshold {
				selected, usedTokens = runCompressionPass(selected, usedTokens, availableTokens, r)
				compressionApplied = true
				if usedTokens+frag.Tokens <= availableTokens {
					selected = append(selected, toOptimized(item, frag, c.score, fi, len(fragments)))
					usedTokens += frag.Tokens
					continue
				}
			}
			break
		}
	}

	return core.OptimizedContext{
		Query:                query,
		Items:                selected,
		TotalTokens:          usedTokens,
		RemainingTokens:      availableTokens - usedTokens,
		OriginalContentCount: originalCount,
		SelectedContentCount: len(selected),
	}
}

type fragment struct {
	Content string
	Tokens  int
}

func fragmentsFor(item core.ContentItem, r resolved) []fragment {
	tokens := tokencount.Count(item.Body)
	if tokens <= r.maxChunkTokens {
		return []fragment{{Content: item.Body, Tokens: tokens}}
	}
	chunks, err := chunk.Chunk(item.Body, item.Type, r.strategyFor(item.Type), r.maxChunkTokens)
	if err != nil || len(chunks) == 0 {
		return []fragment{{Content: item.Body, Tokens: tokens}}
	}
	out := make([]fragment, len(chunks))
	for i, ch := range chunks {
		out[i] = fragment{Content: ch.Content, Tokens: ch.Tokens}
	}
	return out
}

func toOptimized(item core.ContentItem, frag fragment, score float64, fragIndex, fragCount int) core.OptimizedContentItem {
	out := core.OptimizedContentItem{
		ID:          item.ID,
		Content:     frag.Content,
		Title:       item.Title,
		ContentType: item.Type,
		Tokens:      frag.Tokens,
		Relevance:   score,
		Metadata:    map[string]string{},
	}
	if fragCount > 1 {
		idx := fragIndex
		out.ChunkIndex = &idx
	}
	return out
}

// runCompressionPass compresses low-relevance (<0.5) selected fragments in
// place, preserving order, stopping as soon as the running total falls
// below compressionTargetPct*availableTokens. High-relevance fragments are
// never modified. Per the spec's open question on re-chunking: if a
// compressed fragment still exceeds maxChunkTokens, it is re-split with
// FIXED_SIZE and only its first piece is kept, rather than leaving an
// over-budget fragment in the result.
func runCompressionPass(selected []core.OptimizedContentItem, usedTokens, availableTokens int, r resolved) ([]core.OptimizedContentItem, int) {
	target := compressionTargetPct * float64(availableTokens)

	for i := range selected {
		if float64(usedTokens) < target {
			break
		}
		item := &selected[i]
		if item.Relevance >= highRelevanceCutoff {
			continue
		}
		compressed := compressor.Compress(item.Content, item.ContentType)
		if compressed == item.Content {
			continue
		}
		newTokens := tokencount.Count(compressed)
		if newTokens > r.maxChunkTokens {
			if pieces, err := chunk.Chunk(compressed, item.ContentType, core.StrategyFixedSize, r.maxChunkTokens); err == nil && len(pieces) > 0 {
				compressed = pieces[0].Content
				newTokens = pieces[0].Tokens
			}
		}
		usedTokens = usedTokens - item.Tokens + newTokens
		item.Content = compressed
		item.Tokens = newTokens
		if item.Metadata == nil {
			item.Metadata = map[string]string{}
		}
		item.Metadata["compressed"] = "true"
	}
	return selected, usedTokens
}

func isCancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}
