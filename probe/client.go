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

// Package probe implements the shared HTTP client used by every check:
// timed GET/POST against the target, JSON parsing and transport error
// classification. The client never retries; retry policy, if any, is the
// check's responsibility.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "veris-sentinel/1.0"

// maxBodyBytes caps response bodies read into memory. Probe payloads are
// small JSON documents; anything larger is a target misbehavior.
const maxBodyBytes = 4 * 1024 * 1024

// Response is the outcome of one timed request that reached the wire.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

// ElapsedMs returns the wall-clock duration in milliseconds.
func (r *Response) ElapsedMs() int64 { return r.Elapsed.Milliseconds() }

// Options tunes the process-wide probe client.
type Options struct {
	// Timeout is the default connect+read timeout, overridable per call.
	Timeout time.Duration
	// FollowRedirects enables redirect following; off by default.
	FollowRedirects bool
}

// Client is the single shared HTTP client for all checks.
type Client struct {
	base    string
	timeout time.Duration
	hc      *http.Client
}

// New returns a client probing the given base URL.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	hc := &http.Client{}
	if !opts.FollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &Client{base: baseURL, timeout: opts.Timeout, hc: hc}
}

// BaseURL returns the configured target base URL.
func (c *Client) BaseURL() string { return c.base }

// TimedGet issues a GET for path with the given timeout (zero means the
// client default) and measures the wall-clock round trip. The returned
// error is always a transport error; HTTP error statuses are reported
// through Response.StatusCode.
func (c *Client) TimedGet(ctx context.Context, path string, timeout time.Duration, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, timeout, headers)
}

// TimedPost issues a POST with a JSON body.
func (c *Client) TimedPost(ctx context.Context, path string, body any, timeout time.Duration, headers map[string]string) (*Response, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	return c.do(ctx, http.MethodPost, path, payload, timeout, headers)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, timeout time.Duration, headers map[string]string) (*Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
		Elapsed:    elapsed,
	}, nil
}

// ParseJSON decodes body into v.
func ParseJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing response body: %w", err)
	}
	return nil
}
