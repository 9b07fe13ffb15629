package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedIsDeterministic(t *testing.T) {
	h := NewHash(32, 7)
	ctx := context.Background()

	a, err := h.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestHashEmbedDiffersByText(t *testing.T) {
	h := NewHash(32, 7)
	ctx := context.Background()

	a, _ := h.Embed(ctx, "alpha")
	b, _ := h.Embed(ctx, "beta")

	assert.NotEqual(t, a, b)
}

func TestHashEmbedDiffersBySeed(t *testing.T) {
	ctx := context.Background()
	a, _ := NewHash(32, 1).Embed(ctx, "same text")
	b, _ := NewHash(32, 2).Embed(ctx, "same text")

	assert.NotEqual(t, a, b)
}

func TestHashEmbedEmptyTextIsZeroVector(t *testing.T) {
	h := NewHash(16, 0)
	v, err := h.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestHashEmbedDefaultsDimension(t *testing.T) {
	h := NewHash(0, 0)
	assert.Equal(t, 64, h.Dimension())
}
