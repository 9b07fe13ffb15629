// Package dispatcher implements the LLM Dispatcher (spec §4.8): model
// selection with weighted load balancing, per-model concurrency caps,
// circuit breakers, and failover chains. It holds the only process-wide
// mutable state in this engine (ModelStats), guarded per-model so there is
// no cross-model lock (spec §5, §9). Grounded in the teacher's
// internal/tools/multitool/parallel.go semaphore-bounded dispatch and
// internal/sefii/engine.go's retry-around-external-call shape, built into
// this spec's circuit-breaker state machine and failover-chain semantics.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"contextnexus/internal/core"
	"contextnexus/internal/registry"
)

const (
	defaultCircuitBreakerThreshold = 5
	defaultCircuitBreakDuration    = 30 * time.Second
	defaultConnectorTimeout        = 30 * time.Second
	failureWindow                  = 60 * time.Second
	fallbackBurstWindow            = 1 * time.Second
	fallbackBurstLimit             = 3
)

// Logger receives dispatcher diagnostics that do not themselves constitute
// an error the caller needs to handle (fallback-to-default warnings,
// failover attempts).
type Logger interface {
	Warn(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// DispatchOptions mirrors the llmOptions the HTTP layer accepts per §6,
// plus the dispatcher-specific selection hints from §4.8.
type DispatchOptions struct {
	PreferredModelID     string
	RequiredCapabilities []string
	MaxTokens            int
	Temperature          float64
	Stream               bool
}

// StatusSnapshot is one model's observability row, per §4.8's status()
// operation.
type StatusSnapshot struct {
	ID               string
	ActiveCalls      int
	Utilization      float64
	SuccessRate      float64
	AverageLatencyMs float64
	TotalTokens      int64
	IsCircuitBroken  bool
	CircuitResetTime *time.Time
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithClock overrides the dispatcher's notion of "now", for deterministic
// circuit-breaker tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger installs a diagnostics sink.
func WithLogger(log Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithCircuitBreaker overrides the failure-count threshold and cool-down
// duration (env CIRCUIT_BREAK_THRESHOLD / CIRCUIT_BREAK_DURATION_MS).
func WithCircuitBreaker(threshold int, breakDuration time.Duration) Option {
	return func(d *Dispatcher) {
		d.circuitBreakerThreshold = threshold
		d.circuitBreakDuration = breakDuration
	}
}

// WithConnectorTimeout overrides the per-call connector timeout (env
// CONNECTOR_TIMEOUT_MS).
func WithConnectorTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.connectorTimeout = timeout }
}

// Dispatcher selects a model, enforces concurrency caps, executes the
// call, and tracks per-model stats. It is safe for concurrent use; all of
// its mutable state lives in per-model modelState values guarded by their
// own mutex.
type Dispatcher struct {
	reg    *registry.Registry
	models map[string]*modelState
	log    Logger
	now    func() time.Time

	circuitBreakerThreshold int
	circuitBreakDuration    time.Duration
	connectorTimeout        time.Duration

	fallbackMu   sync.Mutex
	fallbackHits []time.Time
}

// New builds a Dispatcher over reg, configuring one modelState per entry in
// configs (keyed by ModelConfig.ID).
func New(reg *registry.Registry, configs []core.ModelConfig, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:                     reg,
		models:                  make(map[string]*modelState, len(configs)),
		log:                     noopLogger{},
		now:                     time.Now,
		circuitBreakerThreshold: defaultCircuitBreakerThreshold,
		circuitBreakDuration:    defaultCircuitBreakDuration,
		connectorTimeout:        defaultConnectorTimeout,
	}
	for _, cfg := range configs {
		if cfg.MaxConcurrent <= 0 {
			cfg.MaxConcurrent = 1
		}
		if cfg.Weight <= 0 {
			cfg.Weight = 1
		}
		d.models[cfg.ID] = &modelState{cfg: cfg}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch selects a model, executes prompt against it, and returns the
// response text, running the configured failover chain on failure.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt core.Prompt, opts DispatchOptions) (string, error) {
	now := d.now()

	id, ok := d.selectModel(now, opts)
	if !ok {
		fallbackID, _, err := d.reg.Default()
		if err != nil {
			return "", core.Unavailable("no models registered")
		}
		d.log.Warn("dispatcher: no eligible model, falling back to default", "model", fallbackID)
		if d.fallbackBurstTripped(now) {
			return "", core.Unavailable("no models available: repeated fallback to default")
		}
		id = fallbackID
	}

	ms, ok := d.models[id]
	if !ok {
		return "", core.Unavailable(fmt.Sprintf("model %q has no registered concurrency state", id))
	}
	if !ms.tryAcquire(now) {
		return "", core.Unavailable(fmt.Sprintf("model %q is not available", id))
	}

	resp, err := d.execute(ctx, id, ms, prompt, opts)
	if err == nil {
		return resp, nil
	}

	for _, failoverID := range ms.cfg.FailoverModels {
		fms, ok := d.models[failoverID]
		if !ok {
			continue
		}
		if !fms.tryAcquire(d.now()) {
			continue
		}
		resp, ferr := d.execute(ctx, failoverID, fms, prompt, opts)
		if ferr == nil {
			return resp, nil
		}
	}

	return "", core.Unavailable(fmt.Sprintf("dispatch failed for %q and all failover models: %v", id, err))
}

// DispatchStream selects a model exactly as Dispatch does but calls the
// connector's Stream method instead of Send, returning the chosen model id
// and a channel of partial chunks. Unlike Dispatch, a mid-stream failure
// does not retry against a failover model: the caller has likely already
// flushed partial output to the client.
func (d *Dispatcher) DispatchStream(ctx context.Context, prompt core.Prompt, opts DispatchOptions) (string, <-chan registry.StreamChunk, error) {
	now := d.now()

	id, ok := d.selectModel(now, opts)
	if !ok {
		fallbackID, _, err := d.reg.Default()
		if err != nil {
			return "", nil, core.Unavailable("no models registered")
		}
		d.log.Warn("dispatcher: no eligible model, falling back to default", "model", fallbackID)
		if d.fallbackBurstTripped(now) {
			return "", nil, core.Unavailable("no models available: repeated fallback to default")
		}
		id = fallbackID
	}

	ms, ok := d.models[id]
	if !ok {
		return "", nil, core.Unavailable(fmt.Sprintf("model %q has no registered concurrency state", id))
	}
	if !ms.tryAcquire(now) {
		return "", nil, core.Unavailable(fmt.Sprintf("model %q is not available", id))
	}

	connector, err := d.reg.Lookup(id)
	if err != nil {
		ms.recordFailure(d.now(), d.circuitBreakerThreshold, d.circuitBreakDuration)
		ms.release()
		return "", nil, err
	}

	chunks, err := connector.Stream(ctx, prompt, registry.SendOptions{
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      true,
	})
	if err != nil {
		ms.recordFailure(d.now(), d.circuitBreakerThreshold, d.circuitBreakDuration)
		ms.release()
		return "", nil, err
	}

	out := make(chan registry.StreamChunk)
	go func() {
		defer close(out)
		defer ms.release()
		start := time.Now()
		var text strings.Builder
		for c := range chunks {
			text.WriteString(c.Text)
			out <- c
		}
		ms.recordSuccess(time.Since(start), approxTokens(prompt, text.String()))
	}()

	return id, out, nil
}

// execute runs one connector call against an already-acquired model slot,
// recording success/failure stats and releasing the slot on every exit
// path.
func (d *Dispatcher) execute(ctx context.Context, id string, ms *modelState, prompt core.Prompt, opts DispatchOptions) (string, error) {
	defer ms.release()

	connector, err := d.reg.Lookup(id)
	if err != nil {
		ms.recordFailure(d.now(), d.circuitBreakerThreshold, d.circuitBreakDuration)
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, d.connectorTimeout)
	defer cancel()

	start := time.Now()
	resp, err := connector.Send(cctx, prompt, registry.SendOptions{
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      opts.Stream,
	})
	latency := time.Since(start)

	if err != nil {
		ms.recordFailure(d.now(), d.circuitBreakerThreshold, d.circuitBreakDuration)
		return "", err
	}

	tokens := approxTokens(prompt, resp)
	ms.recordSuccess(latency, tokens)
	return resp, nil
}

// approxTokens is the dispatcher's len/4 token estimate for accounting
// (spec §9: an approximation the Token Counter should replace for billing
// correctness — kept here only for the Dispatcher's own TotalTokens
// bookkeeping, not for prompt construction).
func approxTokens(prompt core.Prompt, response string) int {
	promptLen := len(prompt.Text)
	for _, m := range prompt.Messages {
		promptLen += len(m.Content)
	}
	return (promptLen + len(response)) / 4
}

// selectModel runs the §4.8 selection algorithm: preferred model first,
// then highest weight/(activeCalls+1) among eligible models, tie-broken by
// lexicographic id. ok is false when no model is eligible and the caller
// must fall back to the registry default.
func (d *Dispatcher) selectModel(now time.Time, opts DispatchOptions) (string, bool) {
	if opts.PreferredModelID != "" {
		if ms, ok := d.models[opts.PreferredModelID]; ok {
			if snap := ms.snapshot(now); !snap.broken && snap.active < snap.maxConcurrent {
				return opts.PreferredModelID, true
			}
		}
	}

	ids := make([]string, 0, len(d.models))
	for id := range d.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bestID := ""
	bestScore := -1.0
	for _, id := range ids {
		ms := d.models[id]
		snap := ms.snapshot(now)
		if snap.broken || snap.active >= snap.maxConcurrent {
			continue
		}
		if len(opts.RequiredCapabilities) > 0 {
			connector, err := d.reg.Lookup(id)
			if err != nil || !connector.Info().HasCapabilities(opts.RequiredCapabilities) {
				continue
			}
		}
		score := snap.weight / float64(snap.active+1)
		if score > bestScore {
			bestScore = score
			bestID = id
		}
	}
	if bestID == "" {
		return "", false
	}
	return bestID, true
}

// fallbackBurstTripped implements the backpressure policy from §5: fail
// fast once selection has yielded the default model fallbackBurstLimit
// times within fallbackBurstWindow.
func (d *Dispatcher) fallbackBurstTripped(now time.Time) bool {
	d.fallbackMu.Lock()
	defer d.fallbackMu.Unlock()

	cutoff := now.Add(-fallbackBurstWindow)
	kept := d.fallbackHits[:0]
	for _, t := range d.fallbackHits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	d.fallbackHits = kept
	return len(d.fallbackHits) >= fallbackBurstLimit
}

// Status returns a snapshot per registered model, sorted by id.
func (d *Dispatcher) Status() []StatusSnapshot {
	ids := make([]string, 0, len(d.models))
	for id := range d.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]StatusSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.models[id].status())
	}
	return out
}

// Reset clears the mutable stats (but not the static config) for modelID,
// matching the explicit reset operation §3 names for ModelStats' process
// lifetime.
func (d *Dispatcher) Reset(modelID string) error {
	ms, ok := d.models[modelID]
	if !ok {
		return core.NotFound("model", modelID)
	}
	ms.reset()
	return nil
}
