// Package blobcontent decorates a repository.ContentRepository so
// GetWithBody materializes a content item's body from an object store
// when the underlying repository returns one with an empty Body (spec
// §9 domain stack: bodies too large to inline in Postgres/memory rows
// live in S3/MinIO under their content id). Grounded in the teacher's
// optional-dependency constructor pattern (internal/workspaces/redis_cache.go):
// a nil *Store leaves the wrapped repository's behavior unchanged.
package blobcontent

import (
	"context"
	"fmt"
	"io"

	"contextnexus/internal/core"
	"contextnexus/internal/objectstore"
	"contextnexus/internal/repository"
)

// Store wraps a repository.ContentRepository with an objectstore.ObjectStore
// fallback for bodies the repository doesn't hold inline.
type Store struct {
	repository.ContentRepository
	objects objectstore.ObjectStore
	prefix  string
}

// New wraps next with objects. Passing a nil objects makes GetWithBody
// behave exactly like next.GetWithBody.
func New(next repository.ContentRepository, objects objectstore.ObjectStore, prefix string) *Store {
	return &Store{ContentRepository: next, objects: objects, prefix: prefix}
}

// GetWithBody returns next's record unchanged unless its Body is empty and
// an object store is configured, in which case the body is fetched from
// <prefix><id>.
func (s *Store) GetWithBody(ctx context.Context, id string) (core.ContentItem, error) {
	item, err := s.ContentRepository.GetWithBody(ctx, id)
	if err != nil {
		return core.ContentItem{}, err
	}
	if item.Body != "" || s.objects == nil {
		return item, nil
	}

	rc, _, err := s.objects.Get(ctx, s.prefix+id)
	if err != nil {
		return item, fmt.Errorf("materialize body for %q: %w", id, err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return item, fmt.Errorf("read materialized body for %q: %w", id, err)
	}
	item.Body = string(body)
	return item, nil
}
