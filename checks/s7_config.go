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
	"net/http"
	"reflect"
	"sort"

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/probe"
)

// ConfigParity (S7) compares the target's self-reported configuration
// snapshot against an expected envelope: required keys must be present,
// and pinned keys must carry the pinned value.
type ConfigParity struct {
	RequiredKeys []string
	Pinned       map[string]any
}

// NewConfigParity returns the check with the production envelope.
func NewConfigParity() *ConfigParity {
	return &ConfigParity{
		RequiredKeys: []string{"version", "storage", "limits"},
		Pinned: map[string]any{
			"read_only": false,
		},
	}
}

func (c *ConfigParity) Run(ctx context.Context, env *check.Env) check.Result {
	if !env.Creds.HasAPIKey() {
		return check.CredentialMissing(env)
	}
	auth := map[string]string{env.Creds.HeaderName: env.Creds.APIKey}

	resp, err := env.Probe.TimedGet(ctx, env.Endpoints.Config, 0, auth)
	if err != nil {
		return check.Errorf("config snapshot probe failed: %v", err).
			WithDetails(probe.ErrorDetails(err))
	}
	if resp.StatusCode != http.StatusOK {
		return check.Fail(fmt.Sprintf("config snapshot returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var snapshot map[string]any
	if err := probe.ParseJSON(resp.Body, &snapshot); err != nil {
		return check.Fail("config snapshot is not valid JSON").
			WithDetails(map[string]any{"error": err.Error()})
	}

	var missing, mismatched []string
	for _, key := range c.RequiredKeys {
		if _, ok := snapshot[key]; !ok {
			missing = append(missing, key)
		}
	}
	for key, want := range c.Pinned {
		got, ok := snapshot[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			mismatched = append(mismatched, key)
		}
	}
	sort.Strings(missing)
	sort.Strings(mismatched)

	details := map[string]any{"keys": len(snapshot)}
	if len(missing) > 0 {
		details["missing_keys"] = missing
	}
	if len(mismatched) > 0 {
		details["mismatched_keys"] = mismatched
	}
	if len(missing) > 0 || len(mismatched) > 0 {
		return check.Fail(fmt.Sprintf("config parity: %d missing, %d mismatched", len(missing), len(mismatched))).
			WithDetails(details)
	}
	return check.Pass("config matches expected envelope").WithDetails(details)
}
