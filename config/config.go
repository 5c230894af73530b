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

// Package config holds the immutable process configuration. It is
// resolved once in cmd/sentinel from flags and environment variables and
// passed down explicitly; nothing reads it from global state.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the resolved Sentinel configuration.
type Config struct {
	TargetBaseURL string `validate:"required,url"`

	// Credentials for authenticated target calls.
	APIKey        string
	APIKeyHeader  string `validate:"required"`
	ReaderToken   string
	AdminToken    string
	AgentToken    string

	// Scheduling.
	Period          time.Duration `validate:"gt=0"`
	JitterFraction  float64       `validate:"gte=0,lt=1"`
	PerCheckTimeout time.Duration `validate:"gt=0"`
	CycleBudget     time.Duration `validate:"gt=0"`
	MaxParallel     int           `validate:"gte=1"`

	// Alerting.
	AlertThreshold int           `validate:"gte=1"`
	AlertCooldown  time.Duration `validate:"gt=0"`
	WebhookURL     string        `validate:"omitempty,url"`
	ChatToken      string
	ChatChannelID  string

	// Host-check ingestion.
	HostCheckSharedSecret string

	// Persistence.
	DBPath        string `validate:"required"`
	RetentionDays int    `validate:"gte=1"`

	// API surface.
	APIBind string `validate:"required"`
	APIPort int    `validate:"gte=1,lte=65535"`

	// Allow-list of check ids; empty enables the whole catalog.
	EnabledChecks []string

	// Target endpoint path overrides; empty entries fall back to the
	// documented defaults.
	LivePath      string
	ReadyPath     string
	StorePath     string
	RetrievePath  string
	QueryPath     string
	DashboardPath string
	BackupPath    string
	ConfigPath    string

	// Logging.
	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string
}

// Default returns the documented configuration defaults.
func Default() Config {
	return Config{
		APIKeyHeader:    "X-API-Key",
		Period:          60 * time.Second,
		JitterFraction:  0.2,
		PerCheckTimeout: 10 * time.Second,
		CycleBudget:     45 * time.Second,
		MaxParallel:     4,
		AlertThreshold:  3,
		AlertCooldown:   15 * time.Minute,
		DBPath:          "sentinel.db",
		RetentionDays:   7,
		APIBind:         "127.0.0.1",
		APIPort:         9310,
		LogLevel:        "info",
	}
}

// APIAddr returns the listen address for the HTTP API.
func (c *Config) APIAddr() string {
	return net.JoinHostPort(c.APIBind, strconv.Itoa(c.APIPort))
}

// Validate checks the configuration. A non-nil error is a fatal
// misconfiguration (exit code 1).
func (c *Config) Validate() error {
	if ip := net.ParseIP(c.APIBind); ip == nil {
		return fmt.Errorf("invalid api bind address %q", c.APIBind)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
