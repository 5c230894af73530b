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

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veris-labs/sentinel/check"
)

func TestExposition(t *testing.T) {
	m := New()
	m.SetRunning(true)
	m.ObserveCycle(&check.CycleReport{Total: 9, Passed: 7, Failed: 1, Errored: 1, DurationMs: 1234})
	m.ObserveCheck("S1-probes", 0.042)
	m.TickSkipped()
	m.AlertSent()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	require.Contains(t, body, "sentinel_running 1")
	require.Contains(t, body, "sentinel_last_cycle_total 9")
	require.Contains(t, body, "sentinel_last_cycle_duration_ms 1234")
	require.Contains(t, body, "sentinel_cycles_total 1")
	require.Contains(t, body, "sentinel_cycles_skipped_total 1")
	require.Contains(t, body, "sentinel_alerts_total 1")
	require.Contains(t, body, `sentinel_check_latency_seconds_bucket{check_id="S1-probes",le="0.05"} 1`)
}
