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
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// chatPoster is the slice of the Slack client the transport needs;
// narrowed for tests.
type chatPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Chat delivers alerts to a Slack channel. All user-influenced strings
// are escaped recursively and structured fields render inside a fenced
// code block, so check output cannot inject formatting.
type Chat struct {
	client  chatPoster
	channel string
}

// NewChat builds the chat transport from a bot token and channel id.
func NewChat(token, channelID string) *Chat {
	return &Chat{client: slack.New(token), channel: channelID}
}

// Name implements Transport.
func (c *Chat) Name() string { return "chat" }

// MinSeverity implements Transport; chat receives everything.
func (c *Chat) MinSeverity() Severity { return SeverityInfo }

// Send implements Transport.
func (c *Chat) Send(ctx context.Context, a Alert) error {
	_, _, err := c.client.PostMessageContext(ctx, c.channel,
		slack.MsgOptionText(renderAlert(a), false))
	if err != nil {
		return fmt.Errorf("posting to channel %s: %w", c.channel, err)
	}
	return nil
}

func renderAlert(a Alert) string {
	var b strings.Builder
	icon := map[Severity]string{
		SeverityInfo:     ":information_source:",
		SeverityWarning:  ":warning:",
		SeverityCritical: ":rotating_light:",
	}[a.Severity]
	if a.Recovered {
		icon = ":white_check_mark:"
	}
	fmt.Fprintf(&b, "%s *%s* [%s] %s\n", icon,
		escapeMarkup(a.CheckID), a.Severity, escapeMarkup(a.Message))
	fmt.Fprintf(&b, "status: %s, consecutive fails: %d\n", a.Status, a.ConsecutiveFails)
	if !a.FirstFailedAt.IsZero() {
		fmt.Fprintf(&b, "first failed: %s\n", a.FirstFailedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	if block := renderDetails(a.Details); block != "" {
		b.WriteString(block)
	}
	return b.String()
}
