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
	"encoding/json"
	"fmt"
	"strings"
)

// escapeMarkup neutralizes the characters Slack-style mrkdwn treats
// specially. Check messages and details are untrusted; escaping happens
// before any rendering so content cannot inject formatting.
func escapeMarkup(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// escapeValue walks nested maps and lists, escaping every string leaf.
func escapeValue(v any) any {
	switch val := v.(type) {
	case string:
		return escapeMarkup(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[escapeMarkup(k)] = escapeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = escapeValue(inner)
		}
		return out
	default:
		return val
	}
}

// renderDetails renders a details map as an escaped fenced code block.
// Backticks inside the content are stripped so the fence cannot be
// closed early.
func renderDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	escaped := escapeValue(details)
	raw, err := json.MarshalIndent(escaped, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf("unrenderable details: %v", err))
	}
	body := strings.ReplaceAll(string(raw), "`", "'")
	return "```\n" + body + "\n```"
}
