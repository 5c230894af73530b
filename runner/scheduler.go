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

package runner

import (
	"context"
	"math/rand"
	"time"
)

// Start launches the periodic scheduler loop. It is idempotent; a
// second Start while running is a no-op.
func (r *Runner) Start() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	if r.metrics != nil {
		r.metrics.SetRunning(true)
	}
	r.log.Info("scheduler starting", "period", r.cfg.Period,
		"jitter", r.cfg.JitterFraction, "max_parallel", r.cfg.MaxParallel,
		"cycle_budget", r.cfg.CycleBudget)
	go r.loop(r.stopCh, r.doneCh)
}

// Stop halts scheduling of new ticks and waits for the loop to exit.
// A cycle in flight runs to completion.
func (r *Runner) Stop() {
	r.loopMu.Lock()
	if !r.running {
		r.loopMu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.doneCh
	r.loopMu.Unlock()

	<-done
	if r.metrics != nil {
		r.metrics.SetRunning(false)
	}
	r.log.Info("scheduler stopped")
}

// Running reports whether the scheduler loop is active.
func (r *Runner) Running() bool {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	return r.running
}

// loop runs one cycle per tick. The first cycle starts immediately;
// each following tick is scheduled at previous_start + period + jitter.
// A tick firing while a cycle is in flight (an on-demand run, or a
// cycle outlasting the period) is skipped and counted.
func (r *Runner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		tickStart := time.Now()
		if r.inFlight.CompareAndSwap(false, true) {
			r.runCycle(context.Background())
			r.inFlight.Store(false)
		} else {
			r.skipped.Add(1)
			if r.metrics != nil {
				r.metrics.TickSkipped()
			}
			r.log.Warn("tick skipped, cycle in flight", "skipped_total", r.skipped.Load())
		}

		select {
		case <-stop:
			return
		case <-time.After(r.tickDelay(time.Since(tickStart))):
		}
	}
}

// tickDelay computes the sleep until the next tick. Jitter is uniform
// in [-period*J, +period*J], bounded so consecutive tick starts are
// never closer than period*(1-J).
func (r *Runner) tickDelay(elapsed time.Duration) time.Duration {
	period := r.cfg.Period
	j := r.cfg.JitterFraction
	next := period
	if j > 0 {
		jitter := time.Duration((rand.Float64()*2 - 1) * j * float64(period))
		next += jitter
		if floor := time.Duration((1 - j) * float64(period)); next < floor {
			next = floor
		}
	}
	delay := next - elapsed
	if delay < 0 {
		delay = 0
	}
	return delay
}
