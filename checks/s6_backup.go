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
	"fmt"
	"net/http"
	"time"

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/probe"
)

// BackupRestore (S6) validates that a recent backup artifact exists and
// that its manifest matches the expected schema.
type BackupRestore struct {
	// MaxAge is the freshness ceiling for the newest artifact. The
	// nightly job plus slack: anything older means a missed backup.
	MaxAge time.Duration
	// SchemaVersion is the manifest schema the restore tooling expects.
	SchemaVersion string
}

// NewBackupRestore returns the check with production defaults.
func NewBackupRestore() *BackupRestore {
	return &BackupRestore{MaxAge: 26 * time.Hour, SchemaVersion: "v1"}
}

type backupManifest struct {
	LastBackupAt  time.Time `json:"last_backup_at"`
	Artifact      string    `json:"artifact"`
	SchemaVersion string    `json:"schema_version"`
	SizeBytes     int64     `json:"size_bytes"`
}

func (b *BackupRestore) Run(ctx context.Context, env *check.Env) check.Result {
	if !env.Creds.HasAPIKey() {
		return check.CredentialMissing(env)
	}
	auth := map[string]string{env.Creds.HeaderName: env.Creds.APIKey}

	resp, err := env.Probe.TimedGet(ctx, env.Endpoints.Backup, 0, auth)
	if err != nil {
		return check.Errorf("backup status probe failed: %v", err).
			WithDetails(probe.ErrorDetails(err))
	}
	if resp.StatusCode != http.StatusOK {
		return check.Fail(fmt.Sprintf("backup status returned %d", resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var m backupManifest
	if err := probe.ParseJSON(resp.Body, &m); err != nil {
		return check.Fail("backup manifest is not valid JSON").
			WithDetails(map[string]any{"error": err.Error()})
	}

	age := time.Since(m.LastBackupAt)
	details := map[string]any{
		"artifact":       m.Artifact,
		"schema_version": m.SchemaVersion,
		"size_bytes":     m.SizeBytes,
		"age_hours":      age.Hours(),
	}
	switch {
	case m.Artifact == "" || m.LastBackupAt.IsZero():
		return check.Fail("backup manifest incomplete").WithDetails(details)
	case m.SchemaVersion != b.SchemaVersion:
		return check.Fail(fmt.Sprintf("backup schema %q, expected %q", m.SchemaVersion, b.SchemaVersion)).
			WithDetails(details)
	case age > b.MaxAge:
		return check.Fail(fmt.Sprintf("newest backup is %.1fh old (max %.1fh)", age.Hours(), b.MaxAge.Hours())).
			WithDetails(details)
	case m.SizeBytes <= 0:
		return check.Warn("backup artifact reports zero size").WithDetails(details)
	default:
		return check.Pass(fmt.Sprintf("backup %s is %.1fh old", m.Artifact, age.Hours())).
			WithDetails(details)
	}
}
