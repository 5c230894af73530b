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

// Package check defines the result model, the check contract and the
// registry of named checks executed by the runner.
package check

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status classifies the outcome of a single check execution.
type Status string

const (
	// StatusPass means the check ran and judged the target healthy.
	StatusPass Status = "pass"
	// StatusWarn is a soft failure; it does not count toward alert
	// streaks by default.
	StatusWarn Status = "warn"
	// StatusFail means the check reached the target and found a
	// contract violation.
	StatusFail Status = "fail"
	// StatusError means the check itself crashed, timed out or could
	// not reach the target at all.
	StatusError Status = "error"
)

// Valid reports whether s is one of the four recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusWarn, StatusFail, StatusError:
		return true
	}
	return false
}

// Failing reports whether s counts toward alert streaks.
func (s Status) Failing() bool {
	return s == StatusFail || s == StatusError
}

// MaxDetailsBytes bounds the serialized size of a result's details map.
const MaxDetailsBytes = 16 * 1024

// Result is the outcome of one check execution. It is immutable once the
// runner has stamped it; holders must not mutate the details map.
type Result struct {
	CheckID   string         `json:"check_id"`
	Timestamp time.Time      `json:"timestamp"`
	Status    Status         `json:"status"`
	LatencyMs int64          `json:"latency_ms"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	TraceID   string         `json:"trace_id"`

	Deprecated      bool             `json:"deprecated,omitempty"`
	DeprecationInfo *DeprecationInfo `json:"deprecation_info,omitempty"`
}

// DeprecationInfo annotates results produced by the deprecation shim.
type DeprecationInfo struct {
	Since            string `json:"deprecated_since"`
	RemovalPlanned   string `json:"removal_planned"`
	ConsolidatedInto string `json:"consolidated_into"`
}

// Pass returns a passing result with the given message.
func Pass(message string) Result {
	return Result{Status: StatusPass, Message: message}
}

// Warn returns a soft-failure result with the given message.
func Warn(message string) Result {
	return Result{Status: StatusWarn, Message: message}
}

// Fail returns a failing result with the given message.
func Fail(message string) Result {
	return Result{Status: StatusFail, Message: message}
}

// Errorf returns an error-status result with a formatted message.
func Errorf(format string, args ...any) Result {
	return Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of r carrying the given details map.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Validate checks the result invariants: a recognized status, a
// non-negative latency, a message on error results and a bounded
// details map.
func (r Result) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.LatencyMs < 0 {
		return fmt.Errorf("negative latency %d", r.LatencyMs)
	}
	if r.Status == StatusError && r.Message == "" {
		return errors.New("error result without message")
	}
	if r.Details != nil {
		raw, err := json.Marshal(r.Details)
		if err != nil {
			return fmt.Errorf("details not serializable: %w", err)
		}
		if len(raw) > MaxDetailsBytes {
			return fmt.Errorf("details too large: %d bytes (max %d)", len(raw), MaxDetailsBytes)
		}
	}
	return nil
}

// DetailsJSON renders the details map as JSON, truncating to a marker
// object when the serialized form exceeds MaxDetailsBytes.
func (r Result) DetailsJSON() []byte {
	if len(r.Details) == 0 {
		return []byte("{}")
	}
	raw, err := json.Marshal(r.Details)
	if err != nil {
		return []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	if len(raw) > MaxDetailsBytes {
		return []byte(`{"truncated":true}`)
	}
	return raw
}

// CycleReport aggregates the results of one scheduler tick.
type CycleReport struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
	Total      int       `json:"total_checks"`
	Passed     int       `json:"passed"`
	Warned     int       `json:"warned"`
	Failed     int       `json:"failed"`
	Errored    int       `json:"errored"`
	DurationMs int64     `json:"duration_ms"`
	Truncated  bool      `json:"truncated"`
}

// Finalize derives the counts and duration from the result list. It must
// be called exactly once, after the last result has been appended.
func (c *CycleReport) Finalize() {
	c.Total = len(c.Results)
	c.Passed, c.Warned, c.Failed, c.Errored = 0, 0, 0, 0
	for _, r := range c.Results {
		switch r.Status {
		case StatusPass:
			c.Passed++
		case StatusWarn:
			c.Warned++
		case StatusFail:
			c.Failed++
		default:
			c.Errored++
		}
	}
	c.DurationMs = c.FinishedAt.Sub(c.StartedAt).Milliseconds()
	if c.DurationMs < 0 {
		c.DurationMs = 0
	}
}

// Summary returns a copy of the report without per-result details,
// suitable for the bounded recent-reports buffer.
func (c *CycleReport) Summary() CycleReport {
	cp := *c
	cp.Results = make([]Result, len(c.Results))
	for i, r := range c.Results {
		r.Details = nil
		cp.Results[i] = r
	}
	return cp
}
