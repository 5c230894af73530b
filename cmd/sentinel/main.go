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

// sentinel is the autonomous health and behavior monitor. It runs the
// check catalog on a jittered schedule against the configured target,
// persists cycle history, raises debounced alerts and serves an HTTP
// API for status, reports and host-check ingestion.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/veris-labs/sentinel/alert"
	"github.com/veris-labs/sentinel/api"
	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/checks"
	"github.com/veris-labs/sentinel/config"
	"github.com/veris-labs/sentinel/metrics"
	"github.com/veris-labs/sentinel/probe"
	"github.com/veris-labs/sentinel/runner"
	"github.com/veris-labs/sentinel/store"
)

// Exit codes: 0 clean shutdown, 1 configuration or runtime failure,
// 2 unrecoverable persistence init failure.
const (
	exitOK          = 0
	exitFailure     = 1
	exitPersistence = 2
)

var app = &cli.App{
	Name:    "sentinel",
	Usage:   "autonomous health and behavior monitor",
	Version: "1.0.0",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "target",
			Usage:   "base URL of the monitored service",
			EnvVars: []string{"TARGET_BASE_URL"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "credential for authenticated target calls",
			EnvVars: []string{"MCP_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "reader-token",
			Usage:   "reader-role token for the security negatives",
			EnvVars: []string{"READER_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "admin-role token for the security negatives",
			EnvVars: []string{"ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "agent-token",
			Usage:   "agent-role token for the security negatives",
			EnvVars: []string{"AGENT_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "period",
			Usage:   "seconds between cycle starts",
			Value:   60,
			EnvVars: []string{"PERIOD_SECONDS"},
		},
		&cli.Float64Flag{
			Name:    "jitter",
			Usage:   "jitter fraction applied to the period",
			Value:   0.2,
			EnvVars: []string{"JITTER_FRACTION"},
		},
		&cli.Int64Flag{
			Name:    "check-timeout",
			Usage:   "default per-check timeout in milliseconds",
			Value:   10000,
			EnvVars: []string{"PER_CHECK_TIMEOUT_MS"},
		},
		&cli.Int64Flag{
			Name:    "cycle-budget",
			Usage:   "wall-clock budget per cycle in milliseconds",
			Value:   45000,
			EnvVars: []string{"CYCLE_BUDGET_MS"},
		},
		&cli.IntFlag{
			Name:    "max-parallel",
			Usage:   "maximum checks running concurrently",
			Value:   4,
			EnvVars: []string{"MAX_PARALLEL"},
		},
		&cli.IntFlag{
			Name:    "alert-threshold",
			Usage:   "consecutive failures before the first alert",
			Value:   3,
			EnvVars: []string{"ALERT_THRESHOLD"},
		},
		&cli.IntFlag{
			Name:    "alert-cooldown",
			Usage:   "minutes between repeated alerts for one check",
			Value:   15,
			EnvVars: []string{"ALERT_COOLDOWN_MINUTES"},
		},
		&cli.StringFlag{
			Name:    "webhook-url",
			Usage:   "alert webhook endpoint",
			EnvVars: []string{"WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "chat-token",
			Usage:   "chat bot token for alert delivery",
			EnvVars: []string{"CHAT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "chat-channel",
			Usage:   "chat channel id for alert delivery",
			EnvVars: []string{"CHAT_CHANNEL_ID"},
		},
		&cli.StringFlag{
			Name:    "host-check-secret",
			Usage:   "shared secret authenticating host-check ingestion",
			EnvVars: []string{"HOST_CHECK_SHARED_SECRET"},
		},
		&cli.StringFlag{
			Name:    "db",
			Usage:   "path of the history database",
			Value:   "sentinel.db",
			EnvVars: []string{"DB_PATH"},
		},
		&cli.IntFlag{
			Name:    "retention-days",
			Usage:   "days of history to retain",
			Value:   7,
			EnvVars: []string{"DB_RETENTION_DAYS"},
		},
		&cli.StringFlag{
			Name:    "api-bind",
			Usage:   "API listen address",
			Value:   "127.0.0.1",
			EnvVars: []string{"API_BIND"},
		},
		&cli.IntFlag{
			Name:    "api-port",
			Usage:   "API listen port",
			Value:   9310,
			EnvVars: []string{"API_PORT"},
		},
		&cli.StringSliceFlag{
			Name:    "enabled-checks",
			Usage:   "allow-list of check ids (empty runs the whole catalog)",
			EnvVars: []string{"ENABLED_CHECKS"},
		},
		&cli.StringSliceFlag{
			Name:    "cors-origins",
			Usage:   "allowed CORS origins for the API",
			EnvVars: []string{"API_CORS_ORIGINS"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "log to this rotated file instead of stderr",
			EnvVars: []string{"LOG_FILE"},
		},
	},
	Action: run,
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		code := exitFailure
		if ec, ok := err.(cli.ExitCoder); ok && ec.ExitCode() != 0 {
			code = ec.ExitCode()
		}
		os.Exit(code)
	}
}

func resolveConfig(ctx *cli.Context) config.Config {
	cfg := config.Default()
	cfg.TargetBaseURL = ctx.String("target")
	cfg.APIKey = ctx.String("api-key")
	cfg.ReaderToken = ctx.String("reader-token")
	cfg.AdminToken = ctx.String("admin-token")
	cfg.AgentToken = ctx.String("agent-token")
	cfg.Period = time.Duration(ctx.Int("period")) * time.Second
	cfg.JitterFraction = ctx.Float64("jitter")
	cfg.PerCheckTimeout = time.Duration(ctx.Int64("check-timeout")) * time.Millisecond
	cfg.CycleBudget = time.Duration(ctx.Int64("cycle-budget")) * time.Millisecond
	cfg.MaxParallel = ctx.Int("max-parallel")
	cfg.AlertThreshold = ctx.Int("alert-threshold")
	cfg.AlertCooldown = time.Duration(ctx.Int("alert-cooldown")) * time.Minute
	cfg.WebhookURL = ctx.String("webhook-url")
	cfg.ChatToken = ctx.String("chat-token")
	cfg.ChatChannelID = ctx.String("chat-channel")
	cfg.HostCheckSharedSecret = ctx.String("host-check-secret")
	cfg.DBPath = ctx.String("db")
	cfg.RetentionDays = ctx.Int("retention-days")
	cfg.APIBind = ctx.String("api-bind")
	cfg.APIPort = ctx.Int("api-port")
	cfg.EnabledChecks = ctx.StringSlice("enabled-checks")
	cfg.LogLevel = ctx.String("log-level")
	cfg.LogFile = ctx.String("log-file")
	for _, override := range []struct {
		env  string
		dest *string
	}{
		{"TARGET_LIVE_PATH", &cfg.LivePath},
		{"TARGET_READY_PATH", &cfg.ReadyPath},
		{"TARGET_STORE_PATH", &cfg.StorePath},
		{"TARGET_RETRIEVE_PATH", &cfg.RetrievePath},
		{"TARGET_QUERY_PATH", &cfg.QueryPath},
		{"TARGET_DASHBOARD_PATH", &cfg.DashboardPath},
		{"TARGET_BACKUP_PATH", &cfg.BackupPath},
		{"TARGET_CONFIG_PATH", &cfg.ConfigPath},
	} {
		if v := os.Getenv(override.env); v != "" {
			*override.dest = v
		}
	}
	return cfg
}

func endpointsFor(cfg *config.Config) check.Endpoints {
	eps := check.DefaultEndpoints()
	apply := func(dest *string, override string) {
		if override != "" {
			*dest = override
		}
	}
	apply(&eps.Live, cfg.LivePath)
	apply(&eps.Ready, cfg.ReadyPath)
	apply(&eps.Store, cfg.StorePath)
	apply(&eps.Retrieve, cfg.RetrievePath)
	apply(&eps.Query, cfg.QueryPath)
	apply(&eps.Dashboard, cfg.DashboardPath)
	apply(&eps.Backup, cfg.BackupPath)
	apply(&eps.Config, cfg.ConfigPath)
	return eps
}

func run(ctx *cli.Context) error {
	cfg := resolveConfig(ctx)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	logger, closeLog, err := setupLogger(&cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer closeLog()
	logger.Info("sentinel starting", "target", cfg.TargetBaseURL,
		"period", cfg.Period, "api", cfg.APIAddr())

	registry := check.NewRegistry()
	checks.Register(registry, cfg.EnabledChecks)

	st, err := store.Open(cfg.DBPath, logger.With("component", "store"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("persistence init failed: %v", err), exitPersistence)
	}
	defer st.Close()

	var transports []alert.Transport
	if cfg.WebhookURL != "" {
		transports = append(transports, alert.NewWebhook(cfg.WebhookURL))
	}
	if cfg.ChatToken != "" && cfg.ChatChannelID != "" {
		transports = append(transports, alert.NewChat(cfg.ChatToken, cfg.ChatChannelID))
	}

	m := metrics.New()
	policy := alert.NewPolicy(cfg.AlertThreshold, cfg.AlertCooldown,
		checks.CriticalIDs(), transports, m, logger.With("component", "alert"))

	env := &check.Env{
		BaseURL:   cfg.TargetBaseURL,
		Endpoints: endpointsFor(&cfg),
		Probe:     probe.New(cfg.TargetBaseURL, probe.Options{Timeout: cfg.PerCheckTimeout}),
		Creds: check.Credentials{
			APIKey:      cfg.APIKey,
			HeaderName:  cfg.APIKeyHeader,
			ReaderToken: cfg.ReaderToken,
			AdminToken:  cfg.AdminToken,
			AgentToken:  cfg.AgentToken,
		},
		Timeout: cfg.PerCheckTimeout,
		Logger:  logger.With("component", "check"),
	}
	rn := runner.New(runner.Config{
		Period:          cfg.Period,
		JitterFraction:  cfg.JitterFraction,
		PerCheckTimeout: cfg.PerCheckTimeout,
		CycleBudget:     cfg.CycleBudget,
		MaxParallel:     cfg.MaxParallel,
	}, registry, env, st, policy, m, logger.With("component", "runner"))

	srv := api.New(cfg.APIAddr(), rn, registry, st, m.Handler(),
		cfg.HostCheckSharedSecret, ctx.StringSlice("cors-origins"),
		logger.With("component", "api"))

	rn.Start()
	defer rn.Stop()

	sweepStop := startRetentionSweep(st, cfg.RetentionDays, logger)
	defer close(sweepStop)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return cli.Exit(fmt.Sprintf("api server failed: %v", err), exitFailure)
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("api shutdown failed", "err", err)
	}
	return nil
}

// startRetentionSweep deletes history past the retention window once an
// hour. The returned channel stops the loop when closed.
func startRetentionSweep(st *store.Store, retentionDays int, logger *slog.Logger) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -retentionDays)
				removed, err := st.Sweep(context.Background(), cutoff)
				if err != nil {
					logger.Error("retention sweep failed", "err", err)
					continue
				}
				if removed > 0 {
					logger.Info("retention sweep", "removed_rows", removed, "cutoff", cutoff)
				}
			}
		}
	}()
	return stop
}
