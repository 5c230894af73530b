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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veris-labs/sentinel/check"
)

func TestEscapeMarkup(t *testing.T) {
	require.Equal(t, "a &amp;&amp; b", escapeMarkup("a && b"))
	require.Equal(t, "&lt;script&gt;", escapeMarkup("<script>"))
	require.Equal(t, "plain", escapeMarkup("plain"))
}

func TestEscapeValueRecursive(t *testing.T) {
	in := map[string]any{
		"<key>": "<value>",
		"nested": map[string]any{
			"list": []any{"<a>", 42, map[string]any{"deep": "<b>"}},
		},
		"number": 7,
	}
	out := escapeValue(in).(map[string]any)

	require.Equal(t, "&lt;value&gt;", out["&lt;key&gt;"])
	nested := out["nested"].(map[string]any)
	list := nested["list"].([]any)
	require.Equal(t, "&lt;a&gt;", list[0])
	require.Equal(t, 42, list[1])
	require.Equal(t, "&lt;b&gt;", list[2].(map[string]any)["deep"])
	require.Equal(t, 7, out["number"])
}

func TestRenderDetailsFence(t *testing.T) {
	block := renderDetails(map[string]any{
		"msg": "closing ``` fence <here>",
	})
	require.True(t, strings.HasPrefix(block, "```\n"))
	require.True(t, strings.HasSuffix(block, "\n```"))

	inner := strings.TrimSuffix(strings.TrimPrefix(block, "```\n"), "\n```")
	require.NotContains(t, inner, "`", "content backticks must not close the fence")
	require.NotContains(t, inner, "<here>")
	require.Contains(t, inner, "&lt;here&gt;")

	require.Empty(t, renderDetails(nil))
}

func TestRenderAlertEscapesUntrustedFields(t *testing.T) {
	msg := renderAlert(Alert{
		CheckID:          "S5-security-<negatives>",
		Severity:         SeverityWarning,
		Status:           check.StatusFail,
		ConsecutiveFails: 3,
		FirstFailedAt:    time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
		Message:          "payload was <b>bold</b> & dangerous",
		Details:          map[string]any{"query": "'; DROP TABLE contexts; --"},
	})
	require.NotContains(t, msg, "<b>")
	require.Contains(t, msg, "&lt;b&gt;")
	require.Contains(t, msg, "S5-security-&lt;negatives&gt;")
	require.Contains(t, msg, "first failed: 2026-08-24")
}

func TestRenderAlertRecovery(t *testing.T) {
	msg := renderAlert(Alert{
		CheckID:   "S1-probes",
		Severity:  SeverityInfo,
		Status:    check.StatusPass,
		Message:   "recovered after 4 consecutive failures",
		Recovered: true,
	})
	require.Contains(t, msg, ":white_check_mark:")
	require.Contains(t, msg, "recovered after 4")
}
