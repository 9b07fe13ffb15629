package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbeddingCacheDisabledWhenURLEmpty(t *testing.T) {
	c, err := NewEmbeddingCache("", 0)
	require.NoError(t, err)
	assert.Nil(t, c)

	// nil receiver methods must be safe no-ops.
	vec, ok := c.Get(context.Background(), "q")
	assert.False(t, ok)
	assert.Nil(t, vec)
	assert.NoError(t, c.Set(context.Background(), "q", []float32{1}))
	assert.NoError(t, c.Close())
}

func TestNewStatusCacheDisabledWhenURLEmpty(t *testing.T) {
	c, err := NewStatusCache("", 0)
	require.NoError(t, err)
	assert.Nil(t, c)

	_, ok := c.Get(context.Background())
	assert.False(t, ok)
	assert.NoError(t, c.Set(context.Background(), StatusEntry(`{}`)))
	assert.NoError(t, c.Close())
}

type fakeEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestCachingEmbedderPassesThroughWithNilCache(t *testing.T) {
	fe := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	ce := NewCachingEmbedder(fe, nil)

	vec, err := ce.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, fe.vec, vec)
	assert.Equal(t, 1, fe.calls)

	_, err = ce.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, fe.calls, "no cache means every call reaches the wrapped embedder")
}

func TestCachingEmbedderPropagatesError(t *testing.T) {
	fe := &fakeEmbedder{err: errors.New("boom")}
	ce := NewCachingEmbedder(fe, nil)

	_, err := ce.Embed(context.Background(), "hello")
	assert.Error(t, err)
}
