// Package registry is the Model Registry (spec §4.7): a process-wide
// mapping from model id to Connector, plus a designated default.
// Constructed once at process start and handed by reference to the
// Dispatcher (constructor injection; see spec §9 on the Registry/Dispatcher
// cycle hazard — connectors never hold a reference back to the registry).
package registry

import (
	"context"
	"sort"
	"sync"

	"contextnexus/internal/core"
)

// SendOptions carries the per-call knobs a Connector.Send needs.
type SendOptions struct {
	MaxTokens   int
	Temperature float64
	Stream      bool
}

// Info describes a connector's identity and capability tags (e.g. "chat",
// "completion", "vision").
type Info struct {
	ID           string
	Capabilities map[string]struct{}
}

// HasCapabilities reports whether every capability in required is present.
func (i Info) HasCapabilities(required []string) bool {
	for _, r := range required {
		if _, ok := i.Capabilities[r]; !ok {
			return false
		}
	}
	return true
}

// StreamChunk is one partial piece of a streamed response.
type StreamChunk struct {
	Text string
	Done bool
}

// Connector is a single registered model's execution surface.
type Connector interface {
	Info() Info
	Send(ctx context.Context, prompt core.Prompt, opts SendOptions) (string, error)
	// Stream, when the connector supports it, sends partial chunks to the
	// returned channel; the channel is closed when the stream ends or ctx
	// is cancelled. Connectors without real streaming support may emit the
	// full response as a single chunk.
	Stream(ctx context.Context, prompt core.Prompt, opts SendOptions) (<-chan StreamChunk, error)
}

// Registry holds registered connectors by model id.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
	defaultID  string
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{connectors: map[string]Connector{}}
}

// Register adds or replaces a connector under id. The first registered
// connector becomes the default unless SetDefault is called explicitly.
func (r *Registry) Register(id string, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[id] = c
	if r.defaultID == "" {
		r.defaultID = id
	}
}

// SetDefault designates id as the default connector; it must already be
// registered.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connectors[id]; !ok {
		return core.NotFound("model", id)
	}
	r.defaultID = id
	return nil
}

// Lookup returns the connector registered under id, or a NotFound error.
func (r *Registry) Lookup(id string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	if !ok {
		return nil, core.NotFound("model", id)
	}
	return c, nil
}

// Default returns the registry's default connector and its id, or a
// NotFound error if nothing has been registered.
func (r *Registry) Default() (string, Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultID == "" {
		return "", nil, core.NotFound("model", "<default>")
	}
	return r.defaultID, r.connectors[r.defaultID], nil
}

// Enumerate lists every registered model id, sorted for determinism.
func (r *Registry) Enumerate() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.connectors))
	for id := range r.connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
