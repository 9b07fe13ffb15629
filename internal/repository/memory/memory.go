// Package memory implements the three storage contracts
// (repository.ContentRepository, ContextRepository, VectorRepository)
// against in-process maps, for tests and local development without
// external services. It does not implement repository.Embedder; VectorStore
// takes one to embed query text. Grounded in the teacher's
// internal/persistence/databases/memory_vector.go (mutex-guarded map,
// cosine-similarity search) and the factory-bundled Manager shape in
// internal/persistence/databases/factory.go.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"contextnexus/internal/core"
	"contextnexus/internal/repository"
)

// ContentStore is an in-memory repository.ContentRepository.
type ContentStore struct {
	mu    sync.RWMutex
	items map[string]core.ContentItem
}

// NewContentStore builds an empty ContentStore.
func NewContentStore() *ContentStore {
	return &ContentStore{items: map[string]core.ContentItem{}}
}

// Put inserts or replaces item, keyed by its ID.
func (s *ContentStore) Put(item core.ContentItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

func (s *ContentStore) FindByID(_ context.Context, id string) (core.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return core.ContentItem{}, core.NotFound("content", id)
	}
	return item, nil
}

func (s *ContentStore) GetWithBody(ctx context.Context, id string) (core.ContentItem, error) {
	return s.FindByID(ctx, id)
}

func (s *ContentStore) ListByProject(_ context.Context, projectID string) ([]core.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ContentItem, 0)
	for _, item := range s.items {
		if item.ProjectID == projectID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ContentStore) FindSimilar(ctx context.Context, id string, limit int, projectID string) ([]core.ContentItem, error) {
	s.mu.RLock()
	target, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, core.NotFound("content", id)
	}

	var candidates []core.ContentItem
	if projectID == "" {
		s.mu.RLock()
		candidates = make([]core.ContentItem, 0, len(s.items))
		for _, item := range s.items {
			candidates = append(candidates, item)
		}
		s.mu.RUnlock()
	} else {
		var err error
		candidates, err = s.ListByProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
	}

	type scored struct {
		item  core.ContentItem
		score int
	}
	out := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == id {
			continue
		}
		out = append(out, scored{item: c, score: sharedWordCount(target.Body, c.Body)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	if limit <= 0 {
		limit = 10
	}
	if len(out) > limit {
		out = out[:limit]
	}
	result := make([]core.ContentItem, len(out))
	for i, s := range out {
		result[i] = s.item
	}
	return result, nil
}

// sharedWordCount is a cheap lexical-overlap stand-in for a real similarity
// model, used only by the in-memory store's FindSimilar.
func sharedWordCount(a, b string) int {
	wordsOf := func(s string) map[string]struct{} {
		set := map[string]struct{}{}
		word := make([]rune, 0, 16)
		flush := func() {
			if len(word) > 0 {
				set[string(word)] = struct{}{}
				word = word[:0]
			}
		}
		for _, r := range s {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				word = append(word, r)
			} else {
				flush()
			}
		}
		flush()
		return set
	}
	wa, wb := wordsOf(a), wordsOf(b)
	count := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			count++
		}
	}
	return count
}

// ContextStore is an in-memory repository.ContextRepository.
type ContextStore struct {
	mu       sync.RWMutex
	contexts map[string]core.Context
}

// NewContextStore builds an empty ContextStore.
func NewContextStore() *ContextStore {
	return &ContextStore{contexts: map[string]core.Context{}}
}

// Put inserts or replaces a context.
func (s *ContextStore) Put(c core.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[c.ID] = c
}

func (s *ContextStore) FindByID(_ context.Context, id string) (core.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[id]
	if !ok {
		return core.Context{}, core.NotFound("context", id)
	}
	return c, nil
}

func (s *ContextStore) ListItems(ctx context.Context, contextID string) ([]core.ContextItemEdge, error) {
	c, err := s.FindByID(ctx, contextID)
	if err != nil {
		return nil, err
	}
	return c.Items, nil
}

func (s *ContextStore) AddItem(_ context.Context, contextID, contentID string, edge core.ContextItemEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[contextID]
	if !ok {
		return core.NotFound("context", contextID)
	}
	edge.ContentID = contentID
	for i, e := range c.Items {
		if e.ContentID == contentID {
			c.Items[i] = edge
			s.contexts[contextID] = c
			return nil
		}
	}
	c.Items = append(c.Items, edge)
	s.contexts[contextID] = c
	return nil
}

func (s *ContextStore) RemoveItem(_ context.Context, contextID, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[contextID]
	if !ok {
		return core.NotFound("context", contextID)
	}
	filtered := c.Items[:0]
	for _, e := range c.Items {
		if e.ContentID != contentID {
			filtered = append(filtered, e)
		}
	}
	c.Items = filtered
	s.contexts[contextID] = c
	return nil
}

func (s *ContextStore) UpdateEdgeMetadata(_ context.Context, contextID, contentID string, patch repository.EdgePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[contextID]
	if !ok {
		return core.NotFound("context", contextID)
	}
	for i, e := range c.Items {
		if e.ContentID == contentID {
			if patch.Relevance != nil {
				c.Items[i].Relevance = patch.Relevance
			}
			if patch.SelectedByUser != nil {
				c.Items[i].SelectedByUser = *patch.SelectedByUser
			}
			s.contexts[contextID] = c
			return nil
		}
	}
	return core.NotFound("context item", contentID)
}

// VectorStore is an in-memory repository.VectorRepository plus a write
// path (Upsert) for embeddings, mirroring the teacher's memoryVector but
// against this spec's FindEmbedding/Similarity read contract.
type VectorStore struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	embed   repository.Embedder
}

// NewVectorStore builds an empty VectorStore. embed is used by Similarity
// to turn the query string into a vector; it may be a deterministic
// stand-in in tests.
func NewVectorStore(embed repository.Embedder) *VectorStore {
	return &VectorStore{vectors: map[string][]float32{}, embed: embed}
}

// Upsert stores or replaces contentID's embedding.
func (s *VectorStore) Upsert(contentID string, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(vector))
	copy(cp, vector)
	s.vectors[contentID] = cp
}

func (s *VectorStore) FindEmbedding(_ context.Context, contentID string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vectors[contentID]
	return v, ok, nil
}

func (s *VectorStore) Similarity(ctx context.Context, contentID, query string) (float64, error) {
	s.mu.RLock()
	v, ok := s.vectors[contentID]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	qv, err := s.embed.Embed(ctx, query)
	if err != nil {
		return 0, err
	}
	return cosine(v, qv), nil
}

func cosine(a, b []float32) float64 {
	an, bn := norm(a), norm(b)
	if an == 0 || bn == 0 {
		return 0
	}
	return dot(a, b) / (an * bn)
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
