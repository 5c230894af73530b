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

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/probe"
)

// requiredDashboardFields are the top-level fields the analytics payload
// must carry for downstream dashboards to render.
var requiredDashboardFields = []string{"services", "totals", "generated_at"}

// MetricsWiring (S4) asserts the dashboard/analytics endpoint has the
// required shape and enumerates at least one service.
type MetricsWiring struct{}

func (MetricsWiring) Run(ctx context.Context, env *check.Env) check.Result {
	resp, err := env.Probe.TimedGet(ctx, env.Endpoints.Dashboard, 0, nil)
	if err != nil {
		return check.Errorf("dashboard probe failed: %v", err).
			WithDetails(probe.ErrorDetails(err))
	}
	if resp.StatusCode != http.StatusOK {
		return check.Fail(fmt.Sprintf("dashboard returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var payload map[string]any
	if err := probe.ParseJSON(resp.Body, &payload); err != nil {
		return check.Fail("dashboard payload is not valid JSON").
			WithDetails(map[string]any{"error": err.Error()})
	}

	var missing []string
	for _, field := range requiredDashboardFields {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)

	services, _ := payload["services"].([]any)
	details := map[string]any{
		"fields":        len(payload),
		"service_count": len(services),
	}
	if len(missing) > 0 {
		details["missing_fields"] = missing
		return check.Fail(fmt.Sprintf("dashboard missing fields: %v", missing)).
			WithDetails(details)
	}
	if len(services) == 0 {
		return check.Fail("dashboard enumerates no services").WithDetails(details)
	}
	return check.Pass(fmt.Sprintf("dashboard wired, %d services", len(services))).
		WithDetails(details)
}
