package dispatcher

import (
	"sync"
	"time"

	"contextnexus/internal/core"
)

// modelState holds one model's static config and mutable stats behind its
// own mutex, so selection and accounting for different models never
// contend with each other.
type modelState struct {
	mu       sync.Mutex
	cfg      core.ModelConfig
	stats    core.ModelStats
	failures []time.Time
}

type stateSnapshot struct {
	active        int
	maxConcurrent int
	weight        float64
	broken        bool
}

// maybeResetCircuit closes the breaker once its cool-down has elapsed.
// Caller must hold mu.
func (m *modelState) maybeResetCircuit(now time.Time) {
	if m.stats.IsCircuitBroken && m.stats.CircuitResetTime != nil && !now.Before(*m.stats.CircuitResetTime) {
		m.stats.IsCircuitBroken = false
		m.stats.CircuitResetTime = nil
		m.failures = nil
	}
}

func (m *modelState) snapshot(now time.Time) stateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetCircuit(now)
	return stateSnapshot{
		active:        m.stats.ActiveCalls,
		maxConcurrent: m.cfg.MaxConcurrent,
		weight:        m.cfg.Weight,
		broken:        m.stats.IsCircuitBroken,
	}
}

// tryAcquire atomically checks eligibility and reserves a concurrency slot.
func (m *modelState) tryAcquire(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetCircuit(now)
	if m.stats.IsCircuitBroken || m.stats.ActiveCalls >= m.cfg.MaxConcurrent {
		return false
	}
	m.stats.ActiveCalls++
	m.stats.TotalCalls++
	return true
}

func (m *modelState) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats.ActiveCalls > 0 {
		m.stats.ActiveCalls--
	}
}

func (m *modelState) recordSuccess(latency time.Duration, tokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.SuccessCalls++
	m.stats.TotalLatencyMs += latency.Milliseconds()
	if tokens > 0 {
		m.stats.TotalTokens += int64(tokens)
	}
}

// recordFailure appends a failure timestamp, prunes the failure window, and
// trips the circuit breaker once the pruned count reaches threshold.
func (m *modelState) recordFailure(now time.Time, threshold int, breakDuration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.FailedCalls++
	at := now
	m.stats.LastErrorAt = &at

	cutoff := now.Add(-failureWindow)
	kept := m.failures[:0]
	for _, f := range m.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	m.failures = append(kept, now)

	if len(m.failures) >= threshold {
		m.stats.IsCircuitBroken = true
		resetAt := now.Add(breakDuration)
		m.stats.CircuitResetTime = &resetAt
	}
}

func (m *modelState) status() StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := StatusSnapshot{
		ID:              m.cfg.ID,
		ActiveCalls:     m.stats.ActiveCalls,
		TotalTokens:     m.stats.TotalTokens,
		IsCircuitBroken: m.stats.IsCircuitBroken,
	}
	if m.cfg.MaxConcurrent > 0 {
		s.Utilization = float64(m.stats.ActiveCalls) / float64(m.cfg.MaxConcurrent)
	}
	if m.stats.TotalCalls > 0 {
		s.SuccessRate = float64(m.stats.SuccessCalls) / float64(m.stats.TotalCalls)
	}
	if m.stats.SuccessCalls > 0 {
		s.AverageLatencyMs = float64(m.stats.TotalLatencyMs) / float64(m.stats.SuccessCalls)
	}
	if m.stats.CircuitResetTime != nil {
		t := *m.stats.CircuitResetTime
		s.CircuitResetTime = &t
	}
	return s
}

func (m *modelState) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = core.ModelStats{}
	m.failures = nil
}
