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

// Package api exposes the read-mostly HTTP surface of the sentinel:
// status and report queries, on-demand cycle triggers, check metadata
// and history, Prometheus metrics and host-check ingestion.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/runner"
	"github.com/veris-labs/sentinel/store"
)

const (
	secretHeader = "X-Sentinel-Secret"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	defaultReportCount = 1
	maxReportCount     = 50
)

// Host-check ingestion throttling, per source address.
const (
	ingestRate  = rate.Limit(1)
	ingestBurst = 5
)

// Server is the sentinel HTTP API.
type Server struct {
	runner   *runner.Runner
	registry *check.Registry
	store    *store.Store
	metrics  http.Handler
	secret   string
	limiter  *sourceLimiter
	log      *slog.Logger

	srv *http.Server
}

// New builds the API server. metricsHandler serves GET /metrics; secret
// is the shared host-check ingestion secret, empty disables ingestion.
func New(addr string, rn *runner.Runner, registry *check.Registry, st *store.Store, metricsHandler http.Handler, secret string, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runner:   rn,
		registry: registry,
		store:    st,
		metrics:  metricsHandler,
		secret:   secret,
		limiter:  newSourceLimiter(ingestRate, ingestBurst),
		log:      logger,
	}
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/checks", s.handleChecks).Methods(http.MethodGet)
	r.HandleFunc("/checks/{id}", s.handleCheck).Methods(http.MethodGet)
	r.HandleFunc("/checks/{id}/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/failures", s.handleFailures).Methods(http.MethodGet)
	r.HandleFunc("/traces", s.handleTraces).Methods(http.MethodGet)
	r.HandleFunc("/host-checks/{id}", s.handleIngest).Methods(http.MethodPost)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           newHandlerStack(r, allowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the wrapped handler stack, used by tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe blocks serving the API until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("api listening", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.runner.Running(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.CurrentStatus())
}

// handleRun triggers one on-demand cycle and returns its report. The
// periodic schedule is unaffected; a concurrent cycle maps to 409.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, runner.ErrCycleInFlight) {
			writeError(w, http.StatusConflict, "cycle_in_flight", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.runner.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.runner.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

func (s *Server) handleChecks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"checks": s.registry.List()})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	desc, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_check", err.Error())
		return
	}
	body := map[string]any{"descriptor": desc}
	if res, ok := s.runner.LatestResult(id); ok {
		body["latest"] = res
	} else if s.store != nil {
		// After a restart the in-memory map is empty but history
		// survives in the store.
		if latest, err := s.store.LatestPerCheck(r.Context()); err == nil {
			if res, ok := latest[id]; ok {
				body["latest"] = res
			}
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.registry.Get(id); err != nil {
		writeError(w, http.StatusNotFound, "unknown_check", err.Error())
		return
	}
	limit, err := boundedInt(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid limit parameter")
		return
	}
	since, until, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"check_id": id, "results": []check.Result{}})
		return
	}
	results, err := s.store.HistoryForCheck(r.Context(), id, limit, since, until)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if results == nil {
		results = []check.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"check_id": id, "results": results})
}

// handleReport returns the last n cycle reports, newest first. In-memory
// summaries serve n=1; larger windows read from the store.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	n, err := boundedInt(r.URL.Query().Get("n"), defaultReportCount, maxReportCount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid n parameter")
		return
	}
	if n == 1 {
		last := s.runner.LastCycle()
		if last == nil {
			writeJSON(w, http.StatusOK, map[string]any{"reports": []check.CycleReport{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": []check.CycleReport{*last}})
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "no_store", "history persistence is disabled")
		return
	}
	reports, err := s.store.RecentCycles(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if reports == nil {
		reports = []check.CycleReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleFailures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"failures": s.runner.RecentFailures()})
}

func (s *Server) handleTraces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"traces": s.runner.RecentTraces()})
}

// ingestBody is the accepted payload for host-check ingestion. A zero
// timestamp is stamped server-side; trace ids are always server-derived.
type ingestBody struct {
	Status    check.Status   `json:"status"`
	LatencyMs int64          `json:"latency_ms"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// handleIngest accepts one externally produced result. The caller
// authenticates with the shared secret header; only declared
// host-ingested ids are accepted.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(r.RemoteAddr) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many ingestion requests")
		return
	}
	if s.secret == "" {
		writeError(w, http.StatusNotImplemented, "ingestion_disabled", "no shared secret configured")
		return
	}
	if !secretMatches(s.secret, r.Header.Get(secretHeader)) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid shared secret")
		return
	}

	id := mux.Vars(r)["id"]
	if !s.registry.IsHostIngested(id) {
		writeError(w, http.StatusBadRequest, "not_host_ingested", "check id does not accept ingested results")
		return
	}

	var body ingestBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed payload: "+err.Error())
		return
	}
	res, err := s.runner.Ingest(check.Result{
		CheckID:   id,
		Status:    body.Status,
		LatencyMs: body.LatencyMs,
		Message:   body.Message,
		Details:   body.Details,
		Timestamp: body.Timestamp,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError emits the stable error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func boundedInt(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

func timeRange(r *http.Request) (since, until time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get("since"); raw != "" {
		if since, err = time.Parse(time.RFC3339, raw); err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid since timestamp")
		}
	}
	if raw := q.Get("until"); raw != "" {
		if until, err = time.Parse(time.RFC3339, raw); err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid until timestamp")
		}
	}
	return since, until, nil
}
