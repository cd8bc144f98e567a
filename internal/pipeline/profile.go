package pipeline

import (
	"sync/atomic"
	"time"
)

// Profiler aggregates counters and timers across multiple runs. Safe for
// concurrent use.
type Profiler struct {
	Runs      atomic.Int64
	Rows      atomic.Int64
	Polylines atomic.Int64
	Anomalies atomic.Int64
	TraceNs   atomic.Int64
}

// Record adds one finished run.
func (p *Profiler) Record(res *Result) {
	if res == nil {
		return
	}
	p.Runs.Add(1)
	p.Rows.Add(int64(res.Rows))
	p.Polylines.Add(int64(res.Stats.Polylines))
	p.Anomalies.Add(int64(res.Stats.Anomalies))
	p.TraceNs.Add(res.Duration.Nanoseconds())
}

// Snapshot returns cumulative metrics in milliseconds for readability.
func (p *Profiler) Snapshot() map[string]any {
	runs := p.Runs.Load()
	rows := p.Rows.Load()
	ns := p.TraceNs.Load()
	out := map[string]any{
		"runs":           runs,
		"rows":           rows,
		"polylines":      p.Polylines.Load(),
		"anomalies":      p.Anomalies.Load(),
		"trace_ms_total": ns / 1_000_000,
	}
	if runs > 0 {
		out["trace_ms_per_run"] = float64(ns) / 1_000_000.0 / float64(runs)
	}
	if ns > 0 {
		out["rows_per_sec"] = float64(rows) / time.Duration(ns).Seconds()
	}
	return out
}
