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

// Package alert implements failure-streak debouncing, severity mapping,
// alert de-duplication and delivery to the configured transports.
package alert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/metrics"
)

// Severity orders alerts for transport gating.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank(s) >= severityRank(min)
}

// Alert is the structured payload handed to every transport.
type Alert struct {
	CheckID          string         `json:"check_id"`
	Severity         Severity       `json:"severity"`
	Status           check.Status   `json:"status"`
	ConsecutiveFails int            `json:"consecutive_fails"`
	FirstFailedAt    time.Time      `json:"first_failed_at"`
	LastTs           time.Time      `json:"last_ts"`
	Message          string         `json:"message"`
	Details          map[string]any `json:"details,omitempty"`
	Recovered        bool           `json:"recovered,omitempty"`
}

// Transport delivers alerts. Failures inside a transport are logged and
// never block other transports or the scheduler.
type Transport interface {
	Name() string
	MinSeverity() Severity
	Send(ctx context.Context, a Alert) error
}

// Streak is the per-check failure state. Warn and pass both reset it;
// warn never increments it.
type Streak struct {
	ConsecutiveFails int       `json:"consecutive_fails"`
	FirstFailedAt    time.Time `json:"first_failed_at,omitempty"`
	LastAlertedAt    time.Time `json:"last_alerted_at,omitempty"`
	LastFingerprint  string    `json:"last_alert_fingerprint,omitempty"`
}

// Policy tracks streaks and decides when to alert. It is mutated only
// from the runner goroutine; API reads get snapshot copies.
type Policy struct {
	threshold  int
	cooldown   time.Duration
	critical   map[string]bool
	transports []Transport
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	streaks map[string]*Streak
}

// NewPolicy builds the alert policy. criticalIDs are checks whose
// failures are always critical regardless of status.
func NewPolicy(threshold int, cooldown time.Duration, criticalIDs []string, transports []Transport, m *metrics.Metrics, logger *slog.Logger) *Policy {
	if threshold < 1 {
		threshold = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	critical := make(map[string]bool, len(criticalIDs))
	for _, id := range criticalIDs {
		critical[id] = true
	}
	return &Policy{
		threshold:  threshold,
		cooldown:   cooldown,
		critical:   critical,
		transports: transports,
		metrics:    m,
		log:        logger,
		now:        time.Now,
		streaks:    make(map[string]*Streak),
	}
}

// Observe feeds one result into the streak machinery, dispatching an
// alert or a recovery notification when the policy says so.
func (p *Policy) Observe(res check.Result) {
	now := p.now()

	p.mu.Lock()
	s, ok := p.streaks[res.CheckID]
	if !ok {
		s = &Streak{}
		p.streaks[res.CheckID] = s
	}

	if res.Status.Failing() {
		if s.ConsecutiveFails == 0 {
			s.FirstFailedAt = res.Timestamp
		}
		s.ConsecutiveFails++

		due := s.ConsecutiveFails == p.threshold ||
			(s.ConsecutiveFails > p.threshold && now.Sub(s.LastAlertedAt) >= p.cooldown)
		if !due {
			p.mu.Unlock()
			return
		}
		fp := fingerprint(res.CheckID, res.Status, now)
		if fp == s.LastFingerprint && now.Sub(s.LastAlertedAt) < p.cooldown {
			p.mu.Unlock()
			return
		}
		s.LastAlertedAt = now
		s.LastFingerprint = fp
		a := Alert{
			CheckID:          res.CheckID,
			Severity:         p.severityFor(res),
			Status:           res.Status,
			ConsecutiveFails: s.ConsecutiveFails,
			FirstFailedAt:    s.FirstFailedAt,
			LastTs:           res.Timestamp,
			Message:          res.Message,
			Details:          res.Details,
		}
		p.mu.Unlock()
		p.dispatch(a)
		return
	}

	// pass or warn: recover if the streak had alerted territory.
	recovered := s.ConsecutiveFails >= p.threshold
	first := s.FirstFailedAt
	fails := s.ConsecutiveFails
	s.ConsecutiveFails = 0
	s.FirstFailedAt = time.Time{}
	s.LastFingerprint = ""
	p.mu.Unlock()

	if recovered {
		p.dispatch(Alert{
			CheckID:          res.CheckID,
			Severity:         SeverityInfo,
			Status:           res.Status,
			ConsecutiveFails: fails,
			FirstFailedAt:    first,
			LastTs:           res.Timestamp,
			Message:          fmt.Sprintf("recovered after %d consecutive failures", fails),
			Recovered:        true,
		})
	}
}

func (p *Policy) severityFor(res check.Result) Severity {
	if res.Status == check.StatusError || p.critical[res.CheckID] {
		return SeverityCritical
	}
	if res.Status == check.StatusFail {
		return SeverityWarning
	}
	return SeverityInfo
}

// dispatch delivers to every transport whose severity floor admits the
// alert. Transport errors are logged, never propagated.
func (p *Policy) dispatch(a Alert) {
	if p.metrics != nil {
		p.metrics.AlertSent()
	}
	for _, t := range p.transports {
		if !a.Severity.AtLeast(t.MinSeverity()) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := t.Send(ctx, a); err != nil {
			p.log.Error("alert transport failed", "transport", t.Name(),
				"check", a.CheckID, "err", err)
		} else {
			p.log.Info("alert dispatched", "transport", t.Name(),
				"check", a.CheckID, "severity", a.Severity, "recovered", a.Recovered)
		}
		cancel()
	}
}

// Snapshot returns a copy of all streaks keyed by check id.
func (p *Policy) Snapshot() map[string]Streak {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Streak, len(p.streaks))
	for id, s := range p.streaks {
		out[id] = *s
	}
	return out
}

// fingerprint hashes (check id, status, hour bucket) so identical
// alerts inside one hour and cooldown window collapse.
func fingerprint(id string, status check.Status, now time.Time) string {
	bucket := now.UTC().Truncate(time.Hour).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(id + "|" + string(status) + "|" + bucket))
	return hex.EncodeToString(sum[:])
}
