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

// Package metrics exposes Sentinel's own operational metrics in
// Prometheus text format. Metric names and buckets are stable within a
// process lifetime; no cross-version compatibility is promised.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veris-labs/sentinel/check"
)

// latencyBuckets is the fixed per-check latency bucket set, in seconds.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics is the process-wide metric set, backed by a dedicated
// registry so the exposition carries only Sentinel series.
type Metrics struct {
	registry *prometheus.Registry

	running      prometheus.Gauge
	lastTotal    prometheus.Gauge
	lastPassed   prometheus.Gauge
	lastWarned   prometheus.Gauge
	lastFailed   prometheus.Gauge
	lastErrored  prometheus.Gauge
	lastDuration prometheus.Gauge

	cyclesTotal  prometheus.Counter
	skippedTotal prometheus.Counter
	alertsTotal  prometheus.Counter

	checkLatency *prometheus.HistogramVec
}

// New builds and registers the metric set.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_running",
			Help: "Whether the scheduler loop is running (1) or stopped (0).",
		}),
		lastTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_last_cycle_total",
			Help: "Checks attempted in the last cycle.",
		}),
		lastPassed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_last_cycle_passed",
			Help: "Passing checks in the last cycle.",
		}),
		lastWarned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_last_cycle_warned",
			Help: "Warning checks in the last cycle.",
		}),
		lastFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_last_cycle_failed",
			Help: "Failing checks in the last cycle.",
		}),
		lastErrored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_last_cycle_errored",
			Help: "Errored checks in the last cycle.",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_last_cycle_duration_ms",
			Help: "Wall-clock duration of the last cycle in milliseconds.",
		}),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_cycles_total",
			Help: "Completed cycles since process start.",
		}),
		skippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_cycles_skipped_total",
			Help: "Ticks skipped because a cycle was already in flight.",
		}),
		alertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_total",
			Help: "Alerts dispatched to transports since process start.",
		}),
		checkLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_check_latency_seconds",
			Help:    "Per-check execution latency.",
			Buckets: latencyBuckets,
		}, []string{"check_id"}),
	}
	reg.MustRegister(
		m.running, m.lastTotal, m.lastPassed, m.lastWarned, m.lastFailed,
		m.lastErrored, m.lastDuration, m.cyclesTotal, m.skippedTotal,
		m.alertsTotal, m.checkLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the text exposition handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetRunning records the scheduler state.
func (m *Metrics) SetRunning(running bool) {
	if running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}

// ObserveCycle records last-cycle gauges and bumps the cycle counter.
func (m *Metrics) ObserveCycle(report *check.CycleReport) {
	m.lastTotal.Set(float64(report.Total))
	m.lastPassed.Set(float64(report.Passed))
	m.lastWarned.Set(float64(report.Warned))
	m.lastFailed.Set(float64(report.Failed))
	m.lastErrored.Set(float64(report.Errored))
	m.lastDuration.Set(float64(report.DurationMs))
	m.cyclesTotal.Inc()
}

// ObserveCheck records one check execution latency.
func (m *Metrics) ObserveCheck(id string, seconds float64) {
	m.checkLatency.WithLabelValues(id).Observe(seconds)
}

// TickSkipped counts a scheduler tick skipped due to an in-flight cycle.
func (m *Metrics) TickSkipped() { m.skippedTotal.Inc() }

// AlertSent counts one alert dispatched to a transport.
func (m *Metrics) AlertSent() { m.alertsTotal.Inc() }
