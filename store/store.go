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

// Package store persists cycle reports and their results in an embedded
// SQLite database. There is a single writer (the runner goroutine);
// readers run concurrently through WAL snapshots and never block cycle
// persistence.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/veris-labs/sentinel/check"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timeFormat = time.RFC3339Nano

// Store is the durable history of cycles and results.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path and applies migrations.
// A missing or corrupt file is moved aside and replaced with a fresh
// schema; only a second consecutive failure is returned to the caller,
// which treats it as an unrecoverable init failure.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := open(path)
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		logger.Warn("database unusable, starting with a fresh schema",
			"path", path, "moved_to", aside, "err", err)
		if mvErr := os.Rename(path, aside); mvErr != nil && !os.IsNotExist(mvErr) {
			return nil, fmt.Errorf("moving unusable database aside: %w", mvErr)
		}
		db, err = open(path)
		if err != nil {
			return nil, fmt.Errorf("reinitializing database: %w", err)
		}
	}
	return &Store{db: db, log: logger}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	var verdict string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&verdict); err != nil || verdict != "ok" {
		db.Close()
		if err == nil {
			err = fmt.Errorf("integrity check: %s", verdict)
		}
		return nil, err
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return db, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveCycle persists one report and its results in a single
// transaction.
func (s *Store) SaveCycle(ctx context.Context, report *check.CycleReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycle_reports
			(cycle_id, started_at, finished_at, duration_ms, total, passed, warned, failed, errored, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.CycleID,
		report.StartedAt.UTC().Format(timeFormat),
		report.FinishedAt.UTC().Format(timeFormat),
		report.DurationMs,
		report.Total, report.Passed, report.Warned, report.Failed, report.Errored,
		boolToInt(report.Truncated),
	)
	if err != nil {
		return fmt.Errorf("inserting cycle row: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO check_results
			(cycle_id, check_id, status, latency_ms, message, details_json, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, res := range report.Results {
		_, err = stmt.ExecContext(ctx,
			report.CycleID, res.CheckID, string(res.Status), res.LatencyMs,
			res.Message, string(res.DetailsJSON()),
			res.Timestamp.UTC().Format(timeFormat),
		)
		if err != nil {
			return fmt.Errorf("inserting result row for %s: %w", res.CheckID, err)
		}
	}
	return tx.Commit()
}

// RecentCycles returns the last n cycle reports, newest first, each
// with its full result list.
func (s *Store) RecentCycles(ctx context.Context, n int) ([]check.CycleReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, started_at, finished_at, duration_ms,
		       total, passed, warned, failed, errored, truncated
		FROM cycle_reports ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []check.CycleReport
	for rows.Next() {
		var (
			rep               check.CycleReport
			started, finished string
			truncated         int
		)
		if err := rows.Scan(&rep.CycleID, &started, &finished, &rep.DurationMs,
			&rep.Total, &rep.Passed, &rep.Warned, &rep.Failed, &rep.Errored, &truncated); err != nil {
			return nil, err
		}
		if rep.StartedAt, err = time.Parse(timeFormat, started); err != nil {
			return nil, err
		}
		if rep.FinishedAt, err = time.Parse(timeFormat, finished); err != nil {
			return nil, err
		}
		rep.Truncated = truncated != 0
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range reports {
		results, err := s.resultsForCycle(ctx, reports[i].CycleID)
		if err != nil {
			return nil, err
		}
		reports[i].Results = results
	}
	return reports, nil
}

func (s *Store) resultsForCycle(ctx context.Context, cycleID string) ([]check.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT check_id, status, latency_ms, message, details_json, ts
		FROM check_results WHERE cycle_id = ? ORDER BY check_id`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

// HistoryForCheck returns up to limit persisted results for one check
// id, newest first, optionally bounded by [since, until].
func (s *Store) HistoryForCheck(ctx context.Context, id string, limit int, since, until time.Time) ([]check.Result, error) {
	q := `SELECT check_id, status, latency_ms, message, details_json, ts
		FROM check_results WHERE check_id = ?`
	args := []any{id}
	if !since.IsZero() {
		q += " AND ts >= ?"
		args = append(args, since.UTC().Format(timeFormat))
	}
	if !until.IsZero() {
		q += " AND ts <= ?"
		args = append(args, until.UTC().Format(timeFormat))
	}
	q += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

// LatestPerCheck returns the newest persisted result for every check
// id present in the history.
func (s *Store) LatestPerCheck(ctx context.Context) (map[string]check.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT check_id, status, latency_ms, message, details_json, MAX(ts)
		FROM check_results GROUP BY check_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]check.Result, len(results))
	for _, res := range results {
		out[res.CheckID] = res
	}
	return out, nil
}

// Sweep deletes rows older than cutoff from both tables and returns the
// number of result rows removed.
func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, "DELETE FROM check_results WHERE ts < ?", ts)
	if err != nil {
		return 0, err
	}
	removed, _ := res.RowsAffected()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cycle_reports WHERE started_at < ?", ts); err != nil {
		return removed, err
	}
	return removed, nil
}

func scanResults(rows *sql.Rows) ([]check.Result, error) {
	var out []check.Result
	for rows.Next() {
		var (
			res     check.Result
			status  string
			details string
			ts      string
		)
		if err := rows.Scan(&res.CheckID, &status, &res.LatencyMs, &res.Message, &details, &ts); err != nil {
			return nil, err
		}
		res.Status = check.Status(status)
		if details != "" && details != "{}" {
			var m map[string]any
			if err := json.Unmarshal([]byte(details), &m); err == nil {
				res.Details = m
			}
		}
		parsed, err := time.Parse(timeFormat, ts)
		if err != nil {
			return nil, err
		}
		res.Timestamp = parsed
		out = append(out, res)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
