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

package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimedGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, userAgent, r.Header.Get("User-Agent"))
		require.Equal(t, "/health/live", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, Options{Timeout: 2 * time.Second})
	resp, err := c.TimedGet(context.Background(), "/health/live", 0, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.GreaterOrEqual(t, resp.ElapsedMs(), int64(0))

	var body map[string]string
	require.NoError(t, ParseJSON(resp.Body, &body))
	require.Equal(t, "ok", body["status"])
}

func TestTimedPostSendsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hello", body["content"])
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, Options{})
	resp, err := c.TimedPost(context.Background(), "/store", map[string]any{"content": "hello"},
		0, map[string]string{"X-API-Key": "secret"})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestTimedGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(srv.URL, Options{})
	_, err := c.TimedGet(context.Background(), "/slow", 50*time.Millisecond, nil)
	require.Error(t, err)
	require.Equal(t, ErrTimeout, ClassifyError(err))
}

func TestRedirectsNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	c := New(srv.URL, Options{})
	resp, err := c.TimedGet(context.Background(), "/", 0, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestClassifyConnectError(t *testing.T) {
	// Port 1 on localhost is essentially never listening.
	c := New("http://127.0.0.1:1", Options{})
	_, err := c.TimedGet(context.Background(), "/", time.Second, nil)
	require.Error(t, err)
	require.Equal(t, ErrConnect, ClassifyError(err))
}

func TestClassifyContextErrors(t *testing.T) {
	require.Equal(t, ErrTimeout, ClassifyError(context.DeadlineExceeded))
	require.Equal(t, ErrTimeout, ClassifyError(context.Canceled))
	require.Equal(t, ErrOther, ClassifyError(nil))
}
