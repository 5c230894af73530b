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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.TargetBaseURL = "http://127.0.0.1:8000"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, time.Minute, cfg.Period)
	require.Equal(t, 0.2, cfg.JitterFraction)
	require.Equal(t, 45*time.Second, cfg.CycleBudget)
	require.Equal(t, 4, cfg.MaxParallel)
	require.Equal(t, 3, cfg.AlertThreshold)
	require.Equal(t, 15*time.Minute, cfg.AlertCooldown)
	require.Equal(t, 7, cfg.RetentionDays)
	require.Equal(t, "127.0.0.1:9310", cfg.APIAddr())
}

func TestValidate(t *testing.T) {
	require.NoError(t, ptr(validConfig()).Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing target", func(c *Config) { c.TargetBaseURL = "" }},
		{"target not a url", func(c *Config) { c.TargetBaseURL = "not a url" }},
		{"zero period", func(c *Config) { c.Period = 0 }},
		{"jitter out of range", func(c *Config) { c.JitterFraction = 1.0 }},
		{"negative jitter", func(c *Config) { c.JitterFraction = -0.1 }},
		{"zero parallelism", func(c *Config) { c.MaxParallel = 0 }},
		{"zero threshold", func(c *Config) { c.AlertThreshold = 0 }},
		{"bad webhook", func(c *Config) { c.WebhookURL = "::::" }},
		{"hostname bind", func(c *Config) { c.APIBind = "localhost" }},
		{"port out of range", func(c *Config) { c.APIPort = 70000 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		require.Error(t, cfg.Validate(), tc.name)
	}
}

func ptr(c Config) *Config { return &c }
