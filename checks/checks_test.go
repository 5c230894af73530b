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
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/internal/testlog"
	"github.com/veris-labs/sentinel/probe"
)

// fakeTarget simulates the monitored service for catalog tests.
type fakeTarget struct {
	mux *http.ServeMux
	srv *httptest.Server

	// stored fixture contents keyed by id, populated by the store
	// endpoint.
	stored map[string]string
}

func newFakeTarget(t *testing.T) *fakeTarget {
	ft := &fakeTarget{mux: http.NewServeMux(), stored: make(map[string]string)}
	ft.srv = httptest.NewServer(ft.mux)
	t.Cleanup(ft.srv.Close)
	return ft
}

func (ft *fakeTarget) env(t *testing.T) *check.Env {
	return &check.Env{
		BaseURL:   ft.srv.URL,
		Endpoints: check.DefaultEndpoints(),
		Probe:     probe.New(ft.srv.URL, probe.Options{Timeout: 5 * time.Second}),
		Creds: check.Credentials{
			APIKey:     "test-api-key",
			HeaderName: "X-API-Key",
		},
		Timeout: 5 * time.Second,
		Logger:  testlog.Logger(t, slog.LevelDebug),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestHealthProbesPass(t *testing.T) {
	ft := newFakeTarget(t)
	ft.mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	ft.mux.HandleFunc("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"components": map[string]string{
				"db":        "ok",
				"vector":    "healthy",
				"scheduler": "ok",
			},
		})
	})

	res := HealthProbes{}.Run(context.Background(), ft.env(t))
	require.Equal(t, check.StatusPass, res.Status)
	require.Equal(t, 3, res.Details["component_count"])
}

func TestHealthProbesDegradedComponent(t *testing.T) {
	ft := newFakeTarget(t)
	ft.mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	ft.mux.HandleFunc("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "degraded",
			"components": map[string]string{
				"db":     "ok",
				"vector": "down",
			},
		})
	})

	res := HealthProbes{}.Run(context.Background(), ft.env(t))
	require.Equal(t, check.StatusFail, res.Status)
	require.Contains(t, res.Message, "vector")
}

func TestHealthProbesUnreachable(t *testing.T) {
	env := &check.Env{
		Endpoints: check.DefaultEndpoints(),
		Probe:     probe.New("http://127.0.0.1:1", probe.Options{Timeout: time.Second}),
		Logger:    testlog.Logger(t, slog.LevelDebug),
	}
	res := HealthProbes{}.Run(context.Background(), env)
	require.Equal(t, check.StatusError, res.Status)
	require.Equal(t, "connect", res.Details["error_kind"])
}

func TestGoldenRecallPerfectScore(t *testing.T) {
	ft := newFakeTarget(t)
	g := NewGoldenRecall()

	queryToID := make(map[string]string)
	for _, f := range g.Facts {
		queryToID[f.Query] = f.ID
	}
	ft.mux.HandleFunc("/tools/store_context", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-api-key", r.Header.Get("X-API-Key"))
		var req storeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, FixtureNamespace, req.Namespace)
		ft.stored[req.ID] = req.Content
		writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
	})
	ft.mux.HandleFunc("/tools/retrieve_context", func(w http.ResponseWriter, r *http.Request) {
		var req retrieveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, retrieveResponse{
			Results: []retrievedItem{{ID: queryToID[req.Query], Score: 0.97}},
		})
	})
	ft.mux.HandleFunc("/tools/query_graph", func(w http.ResponseWriter, r *http.Request) {
		var req graphQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for _, gc := range g.Graph {
			if gc.FromID == req.From && gc.Relation == req.Relation {
				writeJSON(w, http.StatusOK, graphQueryResponse{
					Related: []retrievedItem{{ID: gc.ToID, Score: 1}},
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, graphQueryResponse{})
	})

	res := g.Run(context.Background(), ft.env(t))
	require.Equal(t, check.StatusPass, res.Status)
	require.InDelta(t, 1.0, res.Details["precision_at_1"].(float64), 1e-9)
	require.Len(t, ft.stored, len(g.Facts))
}

func TestGoldenRecallBelowThreshold(t *testing.T) {
	ft := newFakeTarget(t)
	g := NewGoldenRecall()
	g.Graph = nil // isolate the precision phase

	ft.mux.HandleFunc("/tools/store_context", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	ft.mux.HandleFunc("/tools/retrieve_context", func(w http.ResponseWriter, _ *http.Request) {
		// Always the wrong top-1 answer.
		writeJSON(w, http.StatusOK, retrieveResponse{
			Results: []retrievedItem{{ID: "unrelated-doc", Score: 0.5}},
		})
	})

	res := g.Run(context.Background(), ft.env(t))
	require.Equal(t, check.StatusFail, res.Status)
	require.Contains(t, res.Message, "P@1")
	require.NotEmpty(t, res.Details["misses"])
}

func TestGoldenRecallCredentialMissing(t *testing.T) {
	ft := newFakeTarget(t)
	env := ft.env(t)
	env.Creds.APIKey = ""

	res := NewGoldenRecall().Run(context.Background(), env)
	require.Equal(t, check.StatusError, res.Status)
	require.Equal(t, "credential missing", res.Message)
}

func TestSecurityNegativesAllRejected(t *testing.T) {
	ft := newFakeTarget(t)
	ft.mux.HandleFunc("/admin/config", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	ft.mux.HandleFunc("/tools/retrieve_context", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	res := SecurityNegatives{}.Run(context.Background(), ft.env(t))
	require.Equal(t, check.StatusPass, res.Status)
}

func TestSecurityNegativesAcceptedCase(t *testing.T) {
	ft := newFakeTarget(t)
	// Config endpoint wide open: three of the cases get accepted.
	ft.mux.HandleFunc("/admin/config", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": "1"})
	})
	ft.mux.HandleFunc("/tools/retrieve_context", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	res := SecurityNegatives{}.Run(context.Background(), ft.env(t))
	require.Equal(t, check.StatusFail, res.Status)
	require.Contains(t, res.Details["accepted_cases"], "missing_auth")
}

func TestCapacitySmokePass(t *testing.T) {
	ft := newFakeTarget(t)
	ft.mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := NewCapacitySmoke()
	res := c.Run(context.Background(), ft.env(t))
	require.Equal(t, check.StatusPass, res.Status)
	require.Equal(t, c.Attempts, res.Details["successes"])
}

func TestCapacitySmokeHighErrorRate(t *testing.T) {
	ft := newFakeTarget(t)
	ft.mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	res := NewCapacitySmoke().Run(context.Background(), ft.env(t))
	require.Equal(t, check.StatusFail, res.Status)
	require.Equal(t, 0, res.Details["successes"])
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond,
		40 * time.Millisecond, 50 * time.Millisecond, 60 * time.Millisecond,
		70 * time.Millisecond, 80 * time.Millisecond, 90 * time.Millisecond,
		100 * time.Millisecond,
	}
	require.Equal(t, 100*time.Millisecond, percentile(sorted, 0.95))
	require.Equal(t, 50*time.Millisecond, percentile(sorted, 0.5))
	require.Equal(t, time.Duration(0), percentile(nil, 0.95))
}

func TestDeprecatedShim(t *testing.T) {
	shim := NewDeprecated(IDGoldenRecall, "2025-05-01", "2026-01-01")
	res := shim.Run(context.Background(), nil)

	require.Equal(t, check.StatusPass, res.Status)
	require.True(t, res.Deprecated)
	require.NotNil(t, res.DeprecationInfo)
	require.Equal(t, IDGoldenRecall, res.DeprecationInfo.ConsolidatedInto)
	require.Equal(t, true, res.Details["deprecated"])
}

func TestCatalogRegistration(t *testing.T) {
	reg := check.NewRegistry()
	Register(reg, nil)

	require.Len(t, reg.List(), 11)

	// Host-ingested ids never run in a cycle.
	for _, id := range reg.EnabledIDs() {
		require.NotEqual(t, IDFirewallStatus, id)
	}
	require.True(t, reg.IsHostIngested(IDFirewallStatus))

	d, err := reg.Get(IDGraphIntent)
	require.NoError(t, err)
	require.True(t, d.Deprecated)
	require.Equal(t, IDGoldenRecall, d.SuccessorID)
}

func TestCatalogAllowList(t *testing.T) {
	reg := check.NewRegistry()
	Register(reg, []string{IDProbes, IDGoldenRecall})

	require.Equal(t, []string{IDProbes, IDGoldenRecall}, reg.EnabledIDs())
}
