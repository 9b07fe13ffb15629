// Package cache provides optional Redis-backed caching layers that sit in
// front of otherwise per-process state: a cross-call query-embedding cache
// for the Relevance Scorer, and a read-through cache for the Dispatcher's
// status() snapshot in multi-process deployments (SPEC_FULL.md DOMAIN STACK).
// Both degrade to a pass-through when REDIS_URL is unset, matching the
// teacher's optional-dependency constructor pattern (see
// internal/workspaces/redis_cache.go's NewRedisGenerationCache).
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"contextnexus/internal/repository"
)

// EmbeddingCache fronts an Embedder with a TTL-bounded cache keyed on the
// exact query text, so repeated identical queries against the same context
// skip recomputation (SPEC_FULL.md §9 / §4.3).
type EmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewEmbeddingCache builds an EmbeddingCache. Passing an empty url returns a
// nil *EmbeddingCache; all methods on a nil receiver are safe no-ops so
// callers don't need to branch on whether caching is enabled.
func NewEmbeddingCache(url string, ttl time.Duration) (*EmbeddingCache, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EmbeddingCache{client: redis.NewClient(opts), ttl: ttl, prefix: "ctxnexus:embed:"}, nil
}

// Get returns the cached embedding for query, if present.
func (c *EmbeddingCache) Get(ctx context.Context, query string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.prefix+query).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

// Set stores query's embedding for ttl.
func (c *EmbeddingCache) Set(ctx context.Context, query string, vec []float32) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+query, raw, c.ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (c *EmbeddingCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// CachingEmbedder wraps a repository.Embedder with an EmbeddingCache,
// satisfying repository.Embedder itself so it drops into any VectorStore
// constructor unchanged. A nil cache makes every call pass through.
type CachingEmbedder struct {
	next  repository.Embedder
	cache *EmbeddingCache
}

// NewCachingEmbedder wraps next with cache. cache may be nil.
func NewCachingEmbedder(next repository.Embedder, cache *EmbeddingCache) *CachingEmbedder {
	return &CachingEmbedder{next: next, cache: cache}
}

// Embed returns the cached embedding for text when present, otherwise
// delegates to the wrapped embedder and caches the result.
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(ctx, text); ok {
		return vec, nil
	}
	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	_ = e.cache.Set(ctx, text, vec)
	return vec, nil
}

// StatusEntry is the cached JSON encoding of the dispatcher's
// []StatusSnapshot. It is
// defined locally rather than imported from internal/dispatcher to avoid a
// dependency from cache onto dispatcher; callers marshal/unmarshal their own
// StatusSnapshot slice through this cache via JSON, since the fields match.
type StatusEntry = json.RawMessage

// StatusCache is a short-TTL read-through cache for the Dispatcher's
// Status() snapshot, so that in a multi-process deployment every instance
// doesn't need to reconstruct utilization/success-rate math from its own
// in-memory counters alone when serving GET /dispatch/status.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	key    string
}

// NewStatusCache builds a StatusCache. Passing an empty url returns a nil
// *StatusCache; all methods are safe no-ops on a nil receiver.
func NewStatusCache(url string, ttl time.Duration) (*StatusCache, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &StatusCache{client: redis.NewClient(opts), ttl: ttl, key: "ctxnexus:dispatch:status"}, nil
}

// Get returns the last cached status payload, if still within its TTL.
func (c *StatusCache) Get(ctx context.Context) (StatusEntry, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Set stores the latest status payload for ttl.
func (c *StatusCache) Set(ctx context.Context, payload StatusEntry) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, c.key, []byte(payload), c.ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (c *StatusCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
