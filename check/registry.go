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
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNotFound is returned when a check id is not registered.
var ErrNotFound = errors.New("check not found")

// Descriptor is the registry metadata for one check.
type Descriptor struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Timeout     time.Duration `json:"-"`
	TimeoutMs   int64         `json:"default_timeout_ms"`
	Enabled     bool          `json:"enabled"`
	Deprecated  bool          `json:"deprecated"`
	SuccessorID string        `json:"successor_id,omitempty"`

	// Critical check failures map to critical severity in the alert
	// policy regardless of status.
	Critical bool `json:"critical,omitempty"`

	// HostIngested checks are never executed by the runner; their
	// results arrive through the host-check ingestion endpoint.
	HostIngested bool `json:"host_ingested,omitempty"`
}

// Registry maps check ids to checks and their descriptors. It is built
// once at startup and read-only afterwards; reads take no lock.
type Registry struct {
	order  []string
	descs  map[string]Descriptor
	checks map[string]Check
	sealed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descs:  make(map[string]Descriptor),
		checks: make(map[string]Check),
	}
}

// Register adds a check under its descriptor. Registering after Seal or
// registering a duplicate id is a programming error and panics, matching
// the fixed-catalog contract.
func (r *Registry) Register(desc Descriptor, c Check) {
	if r.sealed {
		panic("check: register on sealed registry")
	}
	if desc.ID == "" {
		panic("check: descriptor without id")
	}
	if _, dup := r.descs[desc.ID]; dup {
		panic(fmt.Sprintf("check: duplicate id %q", desc.ID))
	}
	if c == nil && !desc.HostIngested {
		panic(fmt.Sprintf("check: nil check for executable id %q", desc.ID))
	}
	desc.TimeoutMs = desc.Timeout.Milliseconds()
	r.descs[desc.ID] = desc
	r.checks[desc.ID] = c
	r.order = append(r.order, desc.ID)
}

// Seal freezes the registry. The enabled allow-list is applied here:
// when non-empty, checks outside it are disabled. Host-ingested ids stay
// enabled regardless, their results only arrive from outside.
func (r *Registry) Seal(enabledIDs []string) {
	if len(enabledIDs) > 0 {
		allowed := make(map[string]bool, len(enabledIDs))
		for _, id := range enabledIDs {
			allowed[id] = true
		}
		for id, d := range r.descs {
			if !allowed[id] && !d.HostIngested {
				d.Enabled = false
				r.descs[id] = d
			}
		}
	}
	sort.Strings(r.order)
	r.sealed = true
}

// List returns all descriptors in stable id order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.descs[id])
	}
	return out
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (Descriptor, error) {
	d, ok := r.descs[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// CheckFor returns the check registered under id. For deprecated ids
// this is the shim, for host-ingested ids it is nil.
func (r *Registry) CheckFor(id string) (Check, error) {
	c, ok := r.checks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// EnabledIDs returns the ids the runner executes each cycle, in stable
// order. Disabled and host-ingested checks are excluded; deprecated
// checks still run, through their shim.
func (r *Registry) EnabledIDs() []string {
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		d := r.descs[id]
		if d.Enabled && !d.HostIngested {
			out = append(out, id)
		}
	}
	return out
}

// IsHostIngested reports whether id is declared as host-ingested.
func (r *Registry) IsHostIngested(id string) bool {
	d, ok := r.descs[id]
	return ok && d.HostIngested
}
