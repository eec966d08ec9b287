package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackSink mirrors town envelopes into one Slack channel.
type SlackSink struct {
	client    *slack.Client
	channelID string
	logger    *zap.Logger
}

// NewSlackSink creates a push-only Slack client and verifies the token.
func NewSlackSink(botToken, channelID string, logger *zap.Logger) (*SlackSink, error) {
	client := slack.New(botToken)
	auth, err := client.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack auth: %w", err)
	}
	logger.Info("slack sink connected",
		zap.String("bot", auth.User),
		zap.String("channel", channelID))
	return &SlackSink{client: client, channelID: channelID, logger: logger}, nil
}

func (s *SlackSink) Name() string { return "slack" }

// Deliver posts the envelope as a code block message.
func (s *SlackSink) Deliver(ctx context.Context, env *Envelope) error {
	data, err := json.MarshalIndent(env.Data, "", "  ")
	if err != nil {
		return fmt.Errorf("slack render: %w", err)
	}
	text := fmt.Sprintf("*[%s]*\n```%s```", env.Kind, data)
	_, _, err = s.client.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// Close is a no-op; the web API client holds no connection.
func (s *SlackSink) Close() error { return nil }
