package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordSink mirrors town envelopes into one Discord channel.
type DiscordSink struct {
	session   *discordgo.Session
	channelID string
	logger    *zap.Logger
}

// NewDiscordSink opens a bot session and verifies it.
func NewDiscordSink(token, channelID string, logger *zap.Logger) (*DiscordSink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	// Push-only sink; no message intents needed.
	session.Identify.Intents = discordgo.IntentsNone
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord open: %w", err)
	}
	logger.Info("discord sink connected",
		zap.String("user", session.State.User.Username),
		zap.String("channel", channelID))
	return &DiscordSink{session: session, channelID: channelID, logger: logger}, nil
}

func (s *DiscordSink) Name() string { return "discord" }

// Deliver posts the envelope as a compact code block.
func (s *DiscordSink) Deliver(_ context.Context, env *Envelope) error {
	data, err := json.MarshalIndent(env.Data, "", "  ")
	if err != nil {
		return fmt.Errorf("discord render: %w", err)
	}
	content := fmt.Sprintf("**[%s]**\n```json\n%s\n```", env.Kind, data)
	if _, err := s.session.ChannelMessageSend(s.channelID, content); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Close shuts down the bot session.
func (s *DiscordSink) Close() error {
	return s.session.Close()
}
