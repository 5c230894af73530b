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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Webhook posts the stable JSON alert envelope to a configured URL.
// Delivery runs behind a circuit breaker so a dead endpoint cannot keep
// stalling the runner goroutine for the full timeout on every alert.
type Webhook struct {
	url string
	hc  *http.Client
	cb  *gobreaker.CircuitBreaker
}

// NewWebhook builds the webhook transport.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		hc:  &http.Client{Timeout: 10 * time.Second},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "alert-webhook",
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Name implements Transport.
func (w *Webhook) Name() string { return "webhook" }

// MinSeverity implements Transport; webhooks receive warning and above.
func (w *Webhook) MinSeverity() Severity { return SeverityWarning }

// Send implements Transport.
func (w *Webhook) Send(ctx context.Context, a Alert) error {
	_, err := w.cb.Execute(func() (any, error) {
		payload, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encoding alert: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}
