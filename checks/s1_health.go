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
	"sort"
	"strings"

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/probe"
)

// HealthProbes (S1) hits the liveness and readiness endpoints and passes
// only when both answer OK and every declared sub-component reports
// healthy.
type HealthProbes struct{}

type readinessPayload struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (HealthProbes) Run(ctx context.Context, env *check.Env) check.Result {
	live, err := env.Probe.TimedGet(ctx, env.Endpoints.Live, 0, nil)
	if err != nil {
		return check.Errorf("liveness probe failed: %v", err).
			WithDetails(probe.ErrorDetails(err))
	}
	if live.StatusCode != http.StatusOK {
		return check.Fail(fmt.Sprintf("liveness returned %d", live.StatusCode)).
			WithDetails(map[string]any{"live_status": live.StatusCode})
	}

	ready, err := env.Probe.TimedGet(ctx, env.Endpoints.Ready, 0, nil)
	if err != nil {
		return check.Errorf("readiness probe failed: %v", err).
			WithDetails(probe.ErrorDetails(err))
	}
	if ready.StatusCode != http.StatusOK {
		return check.Fail(fmt.Sprintf("readiness returned %d", ready.StatusCode)).
			WithDetails(map[string]any{"ready_status": ready.StatusCode})
	}

	var payload readinessPayload
	if err := probe.ParseJSON(ready.Body, &payload); err != nil {
		return check.Fail("readiness payload is not valid JSON").
			WithDetails(map[string]any{"error": err.Error()})
	}

	details := map[string]any{
		"ready_status":    payload.Status,
		"components":      payload.Components,
		"component_count": len(payload.Components),
		"live_ms":         live.ElapsedMs(),
		"ready_ms":        ready.ElapsedMs(),
	}

	var unhealthy []string
	for name, state := range payload.Components {
		if !strings.EqualFold(state, "ok") && !strings.EqualFold(state, "healthy") {
			unhealthy = append(unhealthy, name)
		}
	}
	sort.Strings(unhealthy)
	if len(unhealthy) > 0 {
		return check.Fail(fmt.Sprintf("unhealthy components: %s", strings.Join(unhealthy, ", "))).
			WithDetails(details)
	}
	return check.Pass("target live and ready").WithDetails(details)
}
