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

	"github.com/veris-labs/sentinel/check"
)

// Deprecated is the shim executed for retired catalog entries. It keeps
// dashboards stable across the deprecation window: the id still reports,
// always passes, and its metadata points at the consolidated successor.
type Deprecated struct {
	SuccessorID    string
	Since          string
	RemovalPlanned string
}

// NewDeprecated returns the shim for a check consolidated into successor.
func NewDeprecated(successor, since, removal string) *Deprecated {
	return &Deprecated{SuccessorID: successor, Since: since, RemovalPlanned: removal}
}

func (d *Deprecated) Run(_ context.Context, _ *check.Env) check.Result {
	res := check.Pass(fmt.Sprintf("deprecated; consolidated into %s", d.SuccessorID)).
		WithDetails(map[string]any{
			"deprecated":        true,
			"deprecated_since":  d.Since,
			"removal_planned":   d.RemovalPlanned,
			"consolidated_into": d.SuccessorID,
		})
	res.Deprecated = true
	res.DeprecationInfo = &check.DeprecationInfo{
		Since:            d.Since,
		RemovalPlanned:   d.RemovalPlanned,
		ConsolidatedInto: d.SuccessorID,
	}
	return res
}
