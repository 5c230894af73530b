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

package check

import (
	"context"
	"log/slog"
	"time"

	"github.com/veris-labs/sentinel/probe"
)

// Check is a single named probe against the target. Implementations
// classify their own outcome: transport problems map to StatusError,
// contract violations to StatusFail. A Check must honor ctx cancellation
// at I/O boundaries and must never panic through Run; the runner still
// recovers panics into error results as a last resort.
type Check interface {
	Run(ctx context.Context, env *Env) Result
}

// Func adapts a plain function to the Check interface.
type Func func(ctx context.Context, env *Env) Result

// Run implements Check.
func (f Func) Run(ctx context.Context, env *Env) Result { return f(ctx, env) }

// Endpoints names the target paths the catalog probes. Paths are
// configuration, not constants; each check declares which one it uses.
type Endpoints struct {
	Live      string
	Ready     string
	Store     string
	Retrieve  string
	Query     string
	Dashboard string
	Backup    string
	Config    string
}

// DefaultEndpoints returns the target's documented default paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Live:      "/health/live",
		Ready:     "/health/ready",
		Store:     "/tools/store_context",
		Retrieve:  "/tools/retrieve_context",
		Query:     "/tools/query_graph",
		Dashboard: "/dashboard/analytics",
		Backup:    "/admin/backup/status",
		Config:    "/admin/config",
	}
}

// Credentials is the process-wide credential bundle, read once at
// startup. Rotation requires a restart.
type Credentials struct {
	// APIKey is sent in HeaderName on authenticated calls. When empty,
	// dependent checks report "credential missing" errors instead of
	// silently degrading.
	APIKey     string
	HeaderName string

	// Role-specific tokens for the security negatives.
	ReaderToken string
	AdminToken  string
	AgentToken  string
}

// HasAPIKey reports whether the primary credential is configured.
func (c Credentials) HasAPIKey() bool { return c.APIKey != "" }

// Env is the execution environment handed to every check run. It is
// shared and read-only; checks must not mutate it.
type Env struct {
	BaseURL   string
	Endpoints Endpoints
	Probe     *probe.Client
	Creds     Credentials
	Timeout   time.Duration
	Logger    *slog.Logger
}

// CredentialMissing is the canonical result for checks that need the API
// key when none is configured.
func CredentialMissing(_ *Env) Result {
	return Errorf("credential missing")
}
