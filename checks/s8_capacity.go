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

package checks

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/veris-labs/sentinel/check"
)

// CapacitySmoke (S8) fires a small burst of concurrent liveness requests
// and asserts p95/p99 latency bounds and an error-rate ceiling. Latency
// statistics come from successful responses only; when fewer than half
// the attempts succeed the check fails regardless of latency.
type CapacitySmoke struct {
	Attempts    int
	Concurrency int
	P95Bound    time.Duration
	P99Bound    time.Duration
}

// NewCapacitySmoke returns the smoke test with default bounds.
func NewCapacitySmoke() *CapacitySmoke {
	return &CapacitySmoke{
		Attempts:    20,
		Concurrency: 5,
		P95Bound:    750 * time.Millisecond,
		P99Bound:    1500 * time.Millisecond,
	}
}

func (c *CapacitySmoke) Run(ctx context.Context, env *check.Env) check.Result {
	sem := semaphore.NewWeighted(int64(c.Concurrency))
	var (
		mu        sync.Mutex
		latencies []time.Duration
		failures  int
	)
	var wg sync.WaitGroup
	for i := 0; i < c.Attempts; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			return check.Errorf("capacity burst cancelled: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			resp, err := env.Probe.TimedGet(ctx, env.Endpoints.Live, 0, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || resp.StatusCode != http.StatusOK {
				failures++
				return
			}
			latencies = append(latencies, resp.Elapsed)
		}()
	}
	wg.Wait()

	successes := len(latencies)
	successRate := float64(successes) / float64(c.Attempts)
	details := map[string]any{
		"attempts":     c.Attempts,
		"successes":    successes,
		"failures":     failures,
		"success_rate": successRate,
	}
	if successRate < 0.5 {
		return check.Fail(fmt.Sprintf("only %d/%d requests succeeded", successes, c.Attempts)).
			WithDetails(details)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	p95 := percentile(latencies, 0.95)
	p99 := percentile(latencies, 0.99)
	details["p95_ms"] = p95.Milliseconds()
	details["p99_ms"] = p99.Milliseconds()

	switch {
	case p95 > c.P95Bound:
		return check.Fail(fmt.Sprintf("p95 %v exceeds bound %v", p95, c.P95Bound)).
			WithDetails(details)
	case p99 > c.P99Bound:
		return check.Fail(fmt.Sprintf("p99 %v exceeds bound %v", p99, c.P99Bound)).
			WithDetails(details)
	default:
		return check.Pass(fmt.Sprintf("p95 %v, p99 %v over %d requests", p95, p99, successes)).
			WithDetails(details)
	}
}

// percentile returns the q-th percentile of sorted latencies using the
// nearest-rank method.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
