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

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/probe"
)

// SecurityNegatives (S5) sends requests the target must reject and
// fails when any of them is accepted. Every case that the target
// accepts is a contract violation, not a transport problem.
type SecurityNegatives struct{}

type negativeCase struct {
	name     string
	run      func(ctx context.Context, env *check.Env) (*probe.Response, error)
	accepted []int // statuses the case must NOT return
}

func securityCases(env *check.Env) []negativeCase {
	okStatuses := []int{http.StatusOK, http.StatusCreated, http.StatusAccepted}
	return []negativeCase{
		{
			name: "missing_auth",
			run: func(ctx context.Context, env *check.Env) (*probe.Response, error) {
				return env.Probe.TimedGet(ctx, env.Endpoints.Config, 0, nil)
			},
			accepted: okStatuses,
		},
		{
			name: "malformed_key",
			run: func(ctx context.Context, env *check.Env) (*probe.Response, error) {
				return env.Probe.TimedGet(ctx, env.Endpoints.Config, 0,
					map[string]string{env.Creds.HeaderName: "not-a-real-key"})
			},
			accepted: okStatuses,
		},
		{
			name: "admin_from_agent_credential",
			run: func(ctx context.Context, env *check.Env) (*probe.Response, error) {
				token := env.Creds.AgentToken
				if token == "" {
					token = "agent-token-unset"
				}
				return env.Probe.TimedGet(ctx, env.Endpoints.Config, 0,
					map[string]string{env.Creds.HeaderName: token})
			},
			accepted: okStatuses,
		},
		{
			name: "injection_shaped_payload",
			run: func(ctx context.Context, env *check.Env) (*probe.Response, error) {
				auth := map[string]string{}
				if env.Creds.HasAPIKey() {
					auth[env.Creds.HeaderName] = env.Creds.APIKey
				}
				return env.Probe.TimedPost(ctx, env.Endpoints.Retrieve, retrieveRequest{
					Query:     "'; DROP TABLE contexts; --",
					Namespace: "__proto__",
					Limit:     -1,
				}, 0, auth)
			},
			accepted: okStatuses,
		},
	}
}

func (SecurityNegatives) Run(ctx context.Context, env *check.Env) check.Result {
	outcomes := map[string]any{}
	var accepted []string
	for _, c := range securityCases(env) {
		resp, err := c.run(ctx, env)
		if err != nil {
			return check.Errorf("security case %s: %v", c.name, err).
				WithDetails(probe.ErrorDetails(err))
		}
		outcomes[c.name] = resp.StatusCode
		for _, bad := range c.accepted {
			if resp.StatusCode == bad {
				accepted = append(accepted, c.name)
				break
			}
		}
	}

	details := map[string]any{"case_statuses": outcomes}
	if len(accepted) > 0 {
		details["accepted_cases"] = accepted
		return check.Fail(fmt.Sprintf("target accepted %d request(s) it must reject", len(accepted))).
			WithDetails(details)
	}
	return check.Pass("all negative cases rejected").WithDetails(details)
}
