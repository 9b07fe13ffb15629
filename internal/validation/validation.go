// Package validation checks that route-supplied identifiers (contextId,
// contentId, projectId) are safe to use as a single filesystem or object
// store path segment. It has no dependencies on other internal packages to
// avoid import cycles.
package validation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidID indicates an identifier is malformed or attempts path
// traversal.
var ErrInvalidID = errors.New("invalid id")

// ID checks that id is safe for use as a single filesystem or object-store
// path segment: no separators, no ".", no "..", not absolute. Returns the
// cleaned id unchanged, or ErrInvalidID.
func ID(id string) (string, error) {
	if id == "" {
		return "", nil
	}
	if id == "." || id == ".." {
		return "", ErrInvalidID
	}
	if strings.ContainsAny(id, `/\`) {
		return "", ErrInvalidID
	}

	clean := filepath.Clean(id)
	if clean != id ||
		strings.HasPrefix(clean, "..") ||
		strings.Contains(clean, string(os.PathSeparator)+"..") ||
		filepath.IsAbs(clean) {
		return "", ErrInvalidID
	}

	return clean, nil
}

// ContextID validates a contextId route parameter.
func ContextID(id string) (string, error) { return ID(id) }

// ContentID validates a contentId route parameter.
func ContentID(id string) (string, error) { return ID(id) }

// ProjectID validates a projectId route parameter.
func ProjectID(id string) (string, error) { return ID(id) }
