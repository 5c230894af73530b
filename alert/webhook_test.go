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

package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/veris-labs/sentinel/check"
)

func TestWebhookSend(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL)
	require.Equal(t, "webhook", wh.Name())
	require.Equal(t, SeverityWarning, wh.MinSeverity())

	err := wh.Send(context.Background(), Alert{
		CheckID:          "S1-probes",
		Severity:         SeverityCritical,
		Status:           check.StatusError,
		ConsecutiveFails: 3,
		LastTs:           time.Now().UTC(),
		Message:          "liveness probe failed",
	})
	require.NoError(t, err)
	require.Equal(t, "S1-probes", got.CheckID)
	require.Equal(t, SeverityCritical, got.Severity)
	require.Equal(t, 3, got.ConsecutiveFails)
}

func TestWebhookNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Send(context.Background(), Alert{CheckID: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestWebhookBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL)
	for i := 0; i < 3; i++ {
		require.Error(t, wh.Send(context.Background(), Alert{CheckID: "x"}))
	}
	err := wh.Send(context.Background(), Alert{CheckID: "x"})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}
