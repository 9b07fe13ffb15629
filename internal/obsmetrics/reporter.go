// Package obsmetrics reads back the durable billing/capacity facts that
// OpenTelemetry export already wrote into ClickHouse, independent of
// in-process dispatcher.ModelStats (SPEC_FULL.md §4.8).
package obsmetrics

import (
	"context"
	"time"

	"contextnexus/internal/config"
)

// Reporter bundles the ClickHouse-backed token, log, and trace readers
// behind a single optional dependency: every method returns empty results
// and a nil error when CLICKHOUSE_DSN is unset, so callers (startup
// diagnostics, a future admin endpoint) don't need to special-case a nil
// sink.
type Reporter struct {
	tokens tokenMetricsProvider
	logs   *clickhouseLogMetrics
	traces *clickhouseTraceMetrics
	runs   *clickhouseRunMetrics
}

// NewReporter bootstraps the ClickHouse schema (if configured) and opens
// the three read-side connections. Returns a non-nil Reporter with all
// fields nil when cfg.DSN is empty, matching the teacher's
// pattern of optional-dependency constructors that degrade rather than fail.
func NewReporter(ctx context.Context, cfg config.ClickHouseConfig) (*Reporter, error) {
	if cfg.DSN == "" {
		return &Reporter{}, nil
	}

	if err := ensureClickHouseTables(ctx, cfg); err != nil {
		return nil, err
	}

	tokens, err := newClickHouseTokenMetrics(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logs, err := newClickHouseLogMetrics(ctx, cfg)
	if err != nil {
		return nil, err
	}
	traces, err := newClickHouseTraceMetrics(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Reporter{
		tokens: tokens,
		logs:   logs,
		traces: traces,
		runs:   newClickHouseRunMetrics(traces),
	}, nil
}

// Enabled reports whether a ClickHouse sink was configured.
func (r *Reporter) Enabled() bool {
	return r != nil && r.tokens != nil
}

// ModelTokenTotals returns durable per-model token totals over window,
// the billing/capacity counterpart to dispatcher.StatusSnapshot.
func (r *Reporter) ModelTokenTotals(ctx context.Context, window time.Duration) ([]ModelTokenTotal, time.Duration, error) {
	if r == nil || r.tokens == nil {
		return nil, 0, nil
	}
	return r.tokens.ModelTotals(ctx, window)
}

// RecentLogs returns the most recent log entries within window.
func (r *Reporter) RecentLogs(ctx context.Context, window time.Duration, limit int) ([]LogEntry, time.Duration, error) {
	if r == nil || r.logs == nil {
		return nil, 0, nil
	}
	return r.logs.Logs(ctx, window, limit)
}

// RecentTraces returns the most recent dispatch spans within window.
func (r *Reporter) RecentTraces(ctx context.Context, window time.Duration, limit int) ([]TraceSnapshot, time.Duration, error) {
	if r == nil || r.traces == nil {
		return nil, 0, nil
	}
	return r.traces.Traces(ctx, window, limit)
}

// RecentRuns returns a recent-activity feed derived from dispatch spans.
func (r *Reporter) RecentRuns(ctx context.Context, window time.Duration, limit int) ([]DispatchRun, error) {
	if r == nil || r.runs == nil {
		return nil, nil
	}
	return r.runs.RecentRuns(ctx, window, limit)
}
