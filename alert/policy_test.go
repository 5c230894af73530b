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

package alert

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/internal/testlog"
)

type captureTransport struct {
	mu     sync.Mutex
	min    Severity
	alerts []Alert
}

func (c *captureTransport) Name() string          { return "capture" }
func (c *captureTransport) MinSeverity() Severity { return c.min }
func (c *captureTransport) Send(_ context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureTransport) snapshot() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert(nil), c.alerts...)
}

func newTestPolicy(t *testing.T, threshold int, cooldown time.Duration, critical []string) (*Policy, *captureTransport, *time.Time) {
	tr := &captureTransport{min: SeverityInfo}
	p := NewPolicy(threshold, cooldown, critical, []Transport{tr}, nil,
		testlog.Logger(t, slog.LevelDebug))
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	return p, tr, &now
}

func result(id string, status check.Status, ts time.Time) check.Result {
	return check.Result{
		CheckID:   id,
		Status:    status,
		Message:   "message for " + id,
		Timestamp: ts,
	}
}

// A fail streak interrupted by a pass resets; the uninterrupted streak
// that follows alerts exactly once at the threshold, and the later
// recovery emits exactly one recovery notification.
func TestDebounceSequence(t *testing.T) {
	p, tr, now := newTestPolicy(t, 3, 15*time.Minute, nil)
	id := "S2-golden-recall"

	seq := []check.Status{
		check.StatusFail, check.StatusFail, check.StatusPass,
		check.StatusFail, check.StatusFail, check.StatusFail, check.StatusFail,
	}
	for _, s := range seq {
		p.Observe(result(id, s, *now))
		*now = now.Add(time.Minute)
	}

	alerts := tr.snapshot()
	require.Len(t, alerts, 1)
	require.Equal(t, id, alerts[0].CheckID)
	require.Equal(t, 3, alerts[0].ConsecutiveFails)
	require.Equal(t, SeverityWarning, alerts[0].Severity)
	require.False(t, alerts[0].Recovered)

	p.Observe(result(id, check.StatusPass, *now))
	alerts = tr.snapshot()
	require.Len(t, alerts, 2)
	require.True(t, alerts[1].Recovered)
	require.Equal(t, SeverityInfo, alerts[1].Severity)
	require.Equal(t, 4, alerts[1].ConsecutiveFails)
}

func TestCooldownRealerts(t *testing.T) {
	p, tr, now := newTestPolicy(t, 3, 15*time.Minute, nil)
	id := "S4-metrics-wiring"

	for i := 0; i < 3; i++ {
		p.Observe(result(id, check.StatusFail, *now))
		*now = now.Add(time.Minute)
	}
	require.Len(t, tr.snapshot(), 1)

	// Within the cooldown nothing more fires.
	for i := 0; i < 5; i++ {
		p.Observe(result(id, check.StatusFail, *now))
		*now = now.Add(time.Minute)
	}
	require.Len(t, tr.snapshot(), 1)

	// After the cooldown the continuing streak alerts again.
	*now = now.Add(15 * time.Minute)
	p.Observe(result(id, check.StatusFail, *now))
	require.Len(t, tr.snapshot(), 2)
	require.Greater(t, tr.snapshot()[1].ConsecutiveFails, 3)
}

func TestWarnNeitherCountsNorRecovers(t *testing.T) {
	p, tr, now := newTestPolicy(t, 2, 15*time.Minute, nil)
	id := "S7-config-parity"

	p.Observe(result(id, check.StatusFail, *now))
	p.Observe(result(id, check.StatusWarn, *now))
	p.Observe(result(id, check.StatusFail, *now))

	// The warn reset the streak below threshold, so no alert and no
	// recovery either.
	require.Empty(t, tr.snapshot())
}

func TestSeverityMapping(t *testing.T) {
	p, _, _ := newTestPolicy(t, 1, time.Minute, []string{"S1-probes"})

	require.Equal(t, SeverityCritical, p.severityFor(check.Result{CheckID: "x", Status: check.StatusError}))
	require.Equal(t, SeverityCritical, p.severityFor(check.Result{CheckID: "S1-probes", Status: check.StatusFail}))
	require.Equal(t, SeverityWarning, p.severityFor(check.Result{CheckID: "x", Status: check.StatusFail}))
	require.Equal(t, SeverityInfo, p.severityFor(check.Result{CheckID: "x", Status: check.StatusWarn}))
}

func TestTransportSeverityFloor(t *testing.T) {
	tr := &captureTransport{min: SeverityCritical}
	p := NewPolicy(1, time.Minute, nil, []Transport{tr}, nil,
		testlog.Logger(t, slog.LevelDebug))

	p.Observe(result("S3-paraphrase", check.StatusFail, time.Now()))
	require.Empty(t, tr.snapshot(), "warning alert must not reach a critical-only transport")

	// Reset the streak; the recovery notification is info and filtered
	// out too.
	p.Observe(result("S3-paraphrase", check.StatusPass, time.Now()))
	require.Empty(t, tr.snapshot())

	p.Observe(result("S3-paraphrase", check.StatusError, time.Now()))
	require.Len(t, tr.snapshot(), 1)
	require.Equal(t, SeverityCritical, tr.snapshot()[0].Severity)
}

func TestFingerprintBuckets(t *testing.T) {
	ts := time.Date(2026, 8, 24, 10, 5, 0, 0, time.UTC)
	a := fingerprint("S1-probes", check.StatusFail, ts)
	b := fingerprint("S1-probes", check.StatusFail, ts.Add(10*time.Minute))
	require.Equal(t, a, b, "same hour bucket")

	c := fingerprint("S1-probes", check.StatusFail, ts.Add(time.Hour))
	require.NotEqual(t, a, c, "different hour bucket")
	require.NotEqual(t, a, fingerprint("S2-golden-recall", check.StatusFail, ts))
	require.NotEqual(t, a, fingerprint("S1-probes", check.StatusError, ts))
}

func TestSnapshotCopies(t *testing.T) {
	p, _, now := newTestPolicy(t, 5, time.Minute, nil)
	p.Observe(result("S1-probes", check.StatusFail, *now))

	snap := p.Snapshot()
	require.Equal(t, 1, snap["S1-probes"].ConsecutiveFails)
	s := snap["S1-probes"]
	s.ConsecutiveFails = 99
	require.Equal(t, 1, p.Snapshot()["S1-probes"].ConsecutiveFails)
}
