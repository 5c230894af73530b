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

// Package checks implements the Sentinel check catalog. Each check is an
// independently authored probe with a typed result; ids are stable and
// referenced by dashboards, so they never change, even across
// deprecation (see the shim in deprecated.go).
package checks

import (
	"time"

	"github.com/veris-labs/sentinel/check"
)

// Stable catalog ids.
const (
	IDProbes          = "S1-probes"
	IDGoldenRecall    = "S2-golden-recall"
	IDParaphrase      = "S3-paraphrase"
	IDMetricsWiring   = "S4-metrics-wiring"
	IDSecurity        = "S5-security-negatives"
	IDBackupRestore   = "S6-backup-restore"
	IDConfigParity    = "S7-config-parity"
	IDCapacitySmoke   = "S8-capacity-smoke"
	IDGraphIntent     = "S9-graph-intent"
	IDContentPipeline = "S10-content-pipeline"
	IDFirewallStatus  = "S11-firewall-status"
)

// CriticalIDs returns the checks whose failures always alert at
// critical severity.
func CriticalIDs() []string {
	return []string{IDProbes, IDBackupRestore}
}

// Register installs the full catalog into reg and seals it against the
// given allow-list.
func Register(reg *check.Registry, enabled []string) {
	reg.Register(check.Descriptor{
		ID:          IDProbes,
		Description: "liveness and readiness probes against the target",
		Timeout:     10 * time.Second,
		Enabled:     true,
		Critical:    true,
	}, HealthProbes{})

	reg.Register(check.Descriptor{
		ID:          IDGoldenRecall,
		Description: "golden-fact storage, recall precision and graph relationships",
		Timeout:     20 * time.Second,
		Enabled:     true,
	}, NewGoldenRecall())

	reg.Register(check.Descriptor{
		ID:          IDParaphrase,
		Description: "retrieval robustness across paraphrased queries",
		Timeout:     15 * time.Second,
		Enabled:     true,
	}, NewParaphrase())

	reg.Register(check.Descriptor{
		ID:          IDMetricsWiring,
		Description: "dashboard analytics endpoint shape and service enumeration",
		Timeout:     10 * time.Second,
		Enabled:     true,
	}, MetricsWiring{})

	reg.Register(check.Descriptor{
		ID:          IDSecurity,
		Description: "requests that must be rejected are rejected",
		Timeout:     15 * time.Second,
		Enabled:     true,
	}, SecurityNegatives{})

	reg.Register(check.Descriptor{
		ID:          IDBackupRestore,
		Description: "recent backup artifact exists and matches the expected schema",
		Timeout:     10 * time.Second,
		Enabled:     true,
		Critical:    true,
	}, NewBackupRestore())

	reg.Register(check.Descriptor{
		ID:          IDConfigParity,
		Description: "target self-reported configuration matches the expected envelope",
		Timeout:     10 * time.Second,
		Enabled:     true,
	}, NewConfigParity())

	reg.Register(check.Descriptor{
		ID:          IDCapacitySmoke,
		Description: "small concurrent burst with latency and error-rate ceilings",
		Timeout:     20 * time.Second,
		Enabled:     true,
	}, NewCapacitySmoke())

	reg.Register(check.Descriptor{
		ID:          IDGraphIntent,
		Description: "graph intent queries (consolidated into S2)",
		Timeout:     5 * time.Second,
		Enabled:     true,
		Deprecated:  true,
		SuccessorID: IDGoldenRecall,
	}, NewDeprecated(IDGoldenRecall, "2025-05-01", "2026-01-01"))

	reg.Register(check.Descriptor{
		ID:          IDContentPipeline,
		Description: "content pipeline validation (consolidated into S2)",
		Timeout:     5 * time.Second,
		Enabled:     true,
		Deprecated:  true,
		SuccessorID: IDGoldenRecall,
	}, NewDeprecated(IDGoldenRecall, "2025-05-01", "2026-01-01"))

	reg.Register(check.Descriptor{
		ID:           IDFirewallStatus,
		Description:  "host firewall status, ingested from the host agent",
		Timeout:      5 * time.Second,
		Enabled:      true,
		HostIngested: true,
	}, nil)

	reg.Seal(enabled)
}
