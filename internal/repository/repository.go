// Package repository defines the storage contracts the rest of the engine
// programs against: content/context persistence, vector similarity lookup,
// and query embedding. Concrete implementations live in the memory,
// postgres, and qdrant subpackages; callers depend only on these
// interfaces.
package repository

import (
	"context"

	"contextnexus/internal/core"
)

// ContentRepository stores ContentItem metadata and bodies.
type ContentRepository interface {
	FindByID(ctx context.Context, id string) (core.ContentItem, error)
	GetWithBody(ctx context.Context, id string) (core.ContentItem, error)
	ListByProject(ctx context.Context, projectID string) ([]core.ContentItem, error)
	FindSimilar(ctx context.Context, id string, limit int, projectID string) ([]core.ContentItem, error)
}

// EdgePatch describes a partial update to a context-content edge.
type EdgePatch struct {
	Relevance       *float64
	SelectedByUser  *bool
}

// ContextRepository stores Context records and their content-item edges.
type ContextRepository interface {
	FindByID(ctx context.Context, id string) (core.Context, error)
	ListItems(ctx context.Context, contextID string) ([]core.ContextItemEdge, error)
	AddItem(ctx context.Context, contextID, contentID string, edge core.ContextItemEdge) error
	RemoveItem(ctx context.Context, contextID, contentID string) error
	UpdateEdgeMetadata(ctx context.Context, contextID, contentID string, patch EdgePatch) error
}

// VectorRepository resolves stored embeddings and similarity scores.
type VectorRepository interface {
	// FindEmbedding returns the stored embedding for contentID, or ok=false
	// if the item has no embedding on record.
	FindEmbedding(ctx context.Context, contentID string) (vector []float32, ok bool, err error)
	// Similarity returns a similarity score between contentID's stored
	// embedding and query, higher meaning more similar. With the default
	// cosine metric this is cosine similarity, which can be negative; the
	// range is not limited to [0,1] (the Scorer clamps it).
	Similarity(ctx context.Context, contentID, query string) (float64, error)
}

// Embedder turns text into a dense vector. Implementations wrap a specific
// provider (OpenAI, local model server) or a deterministic stand-in used in
// tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
