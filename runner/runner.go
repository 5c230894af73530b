// Copyright 2025 The veris-sentinel Authors
// This file is part of veris-sentinel.
//
// veris-sentinel is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// veris-sentinel is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with veris-sentinel. If not, see <http://www.gnu.org/licenses/>.

// Package runner drives check cycles: it selects the enabled checks,
// executes them under a bounded parallelism budget and a per-cycle
// wall-clock budget, aggregates the outcomes into cycle reports and
// fans results out to persistence, ring buffers and the alert policy.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/internal/ring"
	"github.com/veris-labs/sentinel/metrics"
)

// ErrCycleInFlight is returned when an on-demand cycle is requested
// while another cycle is running.
var ErrCycleInFlight = errors.New("a cycle is already in flight")

// Ring buffer capacities, fixed by design.
const (
	failureBufferCap = 200
	reportBufferCap  = 50
	traceBufferCap   = 500
)

const (
	msgCheckTimeout = "check timeout"
	msgCycleBudget  = "cycle budget exceeded"
)

// Config tunes the runner.
type Config struct {
	Period          time.Duration
	JitterFraction  float64
	PerCheckTimeout time.Duration
	CycleBudget     time.Duration
	MaxParallel     int
}

// CycleSink persists finished cycle reports. Failures are logged and
// never fail the cycle.
type CycleSink interface {
	SaveCycle(ctx context.Context, report *check.CycleReport) error
}

// ResultObserver receives every result after a cycle, in registry
// order. The alert policy implements this.
type ResultObserver interface {
	Observe(res check.Result)
}

// TraceEntry correlates a result with the process log.
type TraceEntry struct {
	CheckID   string    `json:"check_id"`
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
	Excerpt   string    `json:"excerpt"`
}

// Status is the API-facing snapshot of the runner state.
type Status struct {
	Running          bool                    `json:"running"`
	LastCycle        *check.CycleReport      `json:"last_cycle,omitempty"`
	SkippedTicks     uint64                  `json:"skipped_ticks"`
	RecentFailures   int                     `json:"recent_failures"`
	HostCheckResults map[string]check.Result `json:"host_check_results"`
}

// Runner owns the scheduler loop and all cycle state.
type Runner struct {
	cfg      Config
	registry *check.Registry
	env      *check.Env
	log      *slog.Logger
	metrics  *metrics.Metrics
	sink     CycleSink
	observer ResultObserver

	failures *ring.Buffer[check.Result]
	reports  *ring.Buffer[check.CycleReport]
	traces   *ring.Buffer[TraceEntry]

	// inFlight serializes cycles: periodic, on-demand and stop all
	// contend on it.
	inFlight atomic.Bool
	skipped  atomic.Uint64

	mu        sync.Mutex
	lastCycle *check.CycleReport
	latest    map[string]check.Result

	loopMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a runner. sink and observer may be nil.
func New(cfg Config, registry *check.Registry, env *check.Env, sink CycleSink, observer ResultObserver, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:      cfg,
		registry: registry,
		env:      env,
		log:      logger,
		metrics:  m,
		sink:     sink,
		observer: observer,
		failures: ring.New[check.Result](failureBufferCap),
		reports:  ring.New[check.CycleReport](reportBufferCap),
		traces:   ring.New[TraceEntry](traceBufferCap),
		latest:   make(map[string]check.Result),
	}
}

// RunOnce executes one on-demand cycle immediately. The periodic
// schedule is unaffected. A second concurrent call observes
// ErrCycleInFlight.
func (r *Runner) RunOnce(ctx context.Context) (*check.CycleReport, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCycleInFlight
	}
	defer r.inFlight.Store(false)
	return r.runCycle(ctx), nil
}

// runCycle executes the enabled catalog once. Callers must hold the
// in-flight flag.
func (r *Runner) runCycle(ctx context.Context) *check.CycleReport {
	ids := r.registry.EnabledIDs()
	report := &check.CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	r.log.Debug("cycle starting", "cycle", report.CycleID, "checks", len(ids))

	cycleCtx, cancel := context.WithTimeout(ctx, r.cfg.CycleBudget)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]check.Result, len(ids))
		wg      sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(r.cfg.MaxParallel))
	for _, id := range ids {
		if err := sem.Acquire(cycleCtx, 1); err != nil {
			// Budget hit before this check could start; it and all
			// remaining ids get synthetic results below.
			break
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)
			res := r.execute(cycleCtx, id)
			mu.Lock()
			results[id] = res
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	// Assemble in registry order for stable presentation; unrun checks
	// are represented by synthetic error results.
	report.Results = make([]check.Result, 0, len(ids))
	for _, id := range ids {
		res, ok := results[id]
		if !ok {
			res = r.stamp(id, check.Errorf(msgCycleBudget), 0)
		}
		report.Results = append(report.Results, res)
	}
	report.FinishedAt = time.Now().UTC()
	for _, res := range report.Results {
		if res.Status == check.StatusError && strings.HasPrefix(res.Message, "cycle budget") {
			report.Truncated = true
			break
		}
	}
	report.Finalize()

	r.publish(ctx, report)
	return report
}

// execute runs one check with its timeout enforced. A result is
// guaranteed within the timeout plus small bookkeeping, even when the
// check body blocks or panics.
func (r *Runner) execute(cycleCtx context.Context, id string) check.Result {
	desc, err := r.registry.Get(id)
	if err != nil {
		return r.stamp(id, check.Errorf("unknown check: %v", err), 0)
	}
	chk, err := r.registry.CheckFor(id)
	if err != nil || chk == nil {
		return r.stamp(id, check.Errorf("no executable check registered for %s", id), 0)
	}

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = r.cfg.PerCheckTimeout
	}
	env := *r.env
	env.Timeout = timeout
	env.Logger = r.log.With("check", id)

	runCtx, cancel := context.WithTimeout(cycleCtx, timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan check.Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- check.Errorf("check panicked").WithDetails(map[string]any{
					"panic": fmt.Sprintf("%T", rec),
					"value": fmt.Sprintf("%v", rec),
				})
			}
		}()
		ch <- chk.Run(runCtx, &env)
	}()

	select {
	case res := <-ch:
		return r.stamp(id, res, time.Since(start))
	case <-runCtx.Done():
		latency := time.Since(start)
		if cycleCtx.Err() != nil {
			return r.stamp(id, check.Errorf(msgCycleBudget), latency)
		}
		return r.stamp(id, check.Errorf(msgCheckTimeout), latency)
	}
}

// stamp fills the runner-owned result fields.
func (r *Runner) stamp(id string, res check.Result, latency time.Duration) check.Result {
	res.CheckID = id
	res.Timestamp = time.Now().UTC()
	res.LatencyMs = latency.Milliseconds()
	if res.LatencyMs < 0 {
		res.LatencyMs = 0
	}
	if res.TraceID == "" {
		res.TraceID = uuid.NewString()
	}
	if err := res.Validate(); err != nil {
		// A check produced a malformed result; degrade it rather than
		// losing the slot.
		r.log.Warn("malformed check result", "check", id, "err", err)
		res.Status = check.StatusError
		if res.Message == "" {
			res.Message = "malformed result: " + err.Error()
		}
		res.Details = map[string]any{"validation_error": err.Error()}
	}
	return res
}

// publish swaps the last-cycle slot, feeds the ring buffers, persists
// the report and hands every result to the alert policy. It runs on the
// cycle's goroutine, so persistence for cycle N completes before cycle
// N+1 starts.
func (r *Runner) publish(ctx context.Context, report *check.CycleReport) {
	r.mu.Lock()
	r.lastCycle = report
	for _, res := range report.Results {
		r.latest[res.CheckID] = res
	}
	r.mu.Unlock()

	for _, res := range report.Results {
		if res.Status.Failing() {
			r.failures.Push(res)
		}
		r.traces.Push(TraceEntry{
			CheckID:   res.CheckID,
			TraceID:   res.TraceID,
			Timestamp: res.Timestamp,
			Excerpt:   excerpt(res.Message),
		})
		if r.metrics != nil {
			r.metrics.ObserveCheck(res.CheckID, float64(res.LatencyMs)/1000)
		}
	}
	r.reports.Push(report.Summary())

	if r.metrics != nil {
		r.metrics.ObserveCycle(report)
	}
	if r.sink != nil {
		// Detached from the trigger context: an on-demand caller may
		// disconnect after the cycle finishes, which must not cancel
		// persistence of a completed report.
		if err := r.sink.SaveCycle(context.WithoutCancel(ctx), report); err != nil {
			r.log.Error("cycle persistence failed", "cycle", report.CycleID, "err", err)
		}
	}
	if r.observer != nil {
		for _, res := range report.Results {
			r.observer.Observe(res)
		}
	}
	r.log.Info("cycle finished", "cycle", report.CycleID,
		"total", report.Total, "passed", report.Passed, "warned", report.Warned,
		"failed", report.Failed, "errored", report.Errored,
		"duration_ms", report.DurationMs, "truncated", report.Truncated)
}

// Ingest folds an externally produced result (host-check ingestion)
// into the runner state, outside the scheduler loop. The result must
// already carry its id and status; missing server-derived fields are
// stamped here.
func (r *Runner) Ingest(res check.Result) (check.Result, error) {
	if !res.Status.Valid() {
		return check.Result{}, fmt.Errorf("invalid status %q", res.Status)
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now().UTC()
	}
	if res.TraceID == "" {
		res.TraceID = uuid.NewString()
	}
	if res.LatencyMs < 0 {
		res.LatencyMs = 0
	}
	if err := res.Validate(); err != nil {
		return check.Result{}, err
	}

	r.mu.Lock()
	r.latest[res.CheckID] = res
	r.mu.Unlock()

	if res.Status.Failing() {
		r.failures.Push(res)
	}
	r.traces.Push(TraceEntry{
		CheckID:   res.CheckID,
		TraceID:   res.TraceID,
		Timestamp: res.Timestamp,
		Excerpt:   excerpt(res.Message),
	})
	if r.observer != nil {
		r.observer.Observe(res)
	}
	r.log.Info("host check ingested", "check", res.CheckID, "status", res.Status)
	return res, nil
}

// LatestResult returns the most recent result for id, executed or
// ingested.
func (r *Runner) LatestResult(id string) (check.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.latest[id]
	return res, ok
}

// LastCycle returns the last cycle report, or nil before the first
// cycle.
func (r *Runner) LastCycle() *check.CycleReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCycle
}

// RecentFailures returns a snapshot of the failure buffer, oldest
// first.
func (r *Runner) RecentFailures() []check.Result { return r.failures.Snapshot() }

// RecentReports returns a snapshot of the report summaries, oldest
// first.
func (r *Runner) RecentReports() []check.CycleReport { return r.reports.Snapshot() }

// RecentTraces returns a snapshot of the trace buffer, oldest first.
func (r *Runner) RecentTraces() []TraceEntry { return r.traces.Snapshot() }

// CurrentStatus builds the /status snapshot.
func (r *Runner) CurrentStatus() Status {
	host := make(map[string]check.Result)
	r.mu.Lock()
	var last *check.CycleReport
	if r.lastCycle != nil {
		s := r.lastCycle.Summary()
		last = &s
	}
	for id, res := range r.latest {
		if r.registry.IsHostIngested(id) {
			host[id] = res
		}
	}
	r.mu.Unlock()

	return Status{
		Running:          r.Running(),
		LastCycle:        last,
		SkippedTicks:     r.skipped.Load(),
		RecentFailures:   r.failures.Len(),
		HostCheckResults: host,
	}
}

func excerpt(msg string) string {
	const max = 140
	if len(msg) <= max {
		return msg
	}
	return msg[:max]
}
