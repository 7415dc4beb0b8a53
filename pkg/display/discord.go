package display

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Discord embed limits
const (
	maxEmbedDescription = 4096
	maxEmbedField       = 1024
)

// ChannelMessenger is the part of *discordgo.Session used to post answers
type ChannelMessenger interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// DiscordDisplay posts each answer as an embed in one channel. Showing a
// new answer replaces the previous message; Hide deletes it.
type DiscordDisplay struct {
	session   ChannelMessenger
	channelID string
	logger    pipeline.Logger

	mu        sync.Mutex
	messageID string
	lastErr   error
}

// NewDiscordDisplay creates a display posting to channelID
func NewDiscordDisplay(session ChannelMessenger, channelID string, logger pipeline.Logger) (*DiscordDisplay, error) {
	if session == nil || channelID == "" {
		return nil, fmt.Errorf("discord display needs a session and a channel id")
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &DiscordDisplay{
		session:   session,
		channelID: channelID,
		logger:    logger.With(pipeline.String("component", "discord_display"), pipeline.String("channel_id", channelID)),
	}, nil
}

// Show implements pipeline.Display
func (d *DiscordDisplay) Show(ctx context.Context, answer Answer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.messageID != "" {
		if err := d.session.ChannelMessageDelete(d.channelID, d.messageID, discordgo.WithContext(ctx)); err != nil {
			d.logger.Debug("Failed to delete previous answer", pipeline.Error(err))
		}
		d.messageID = ""
	}

	msg, err := d.session.ChannelMessageSendEmbed(d.channelID, AnswerEmbed(answer), discordgo.WithContext(ctx))
	d.lastErr = err
	if err != nil {
		return fmt.Errorf("send answer embed: %w", err)
	}
	d.messageID = msg.ID
	return nil
}

// Hide implements pipeline.Display
func (d *DiscordDisplay) Hide(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.messageID == "" {
		return nil
	}
	err := d.session.ChannelMessageDelete(d.channelID, d.messageID, discordgo.WithContext(ctx))
	d.lastErr = err
	if err != nil {
		return fmt.Errorf("delete answer message: %w", err)
	}
	d.messageID = ""
	return nil
}

// Healthy reports whether the last Discord call succeeded
func (d *DiscordDisplay) Healthy(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr == nil
}

// Restart forgets the last error and the tracked message
func (d *DiscordDisplay) Restart(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = nil
	d.messageID = ""
	return nil
}

// MessageID returns the id of the answer currently shown
func (d *DiscordDisplay) MessageID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.messageID
}

// AnswerEmbed renders an answer as a Discord embed
func AnswerEmbed(answer Answer) *discordgo.MessageEmbed {
	title := strings.ReplaceAll(answer.Category, "_", " ")
	if title == "" {
		title = "answer"
	}

	at := answer.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}

	return &discordgo.MessageEmbed{
		Title:       "💡 " + strings.ToUpper(title[:1]) + title[1:],
		Description: truncate(answer.Body, maxEmbedDescription),
		Color:       colorFor(answer.Confidence),
		Timestamp:   at.Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "❓ Question",
				Value: truncate(answer.Question, maxEmbedField),
			},
			{
				Name:   "🎯 Confidence",
				Value:  fmt.Sprintf("%.0f%%", answer.Confidence*100),
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Sasayaki | " + answer.ItemID,
		},
	}
}

func colorFor(confidence float64) int {
	switch {
	case confidence >= 0.9:
		return 0x43B581 // green
	case confidence >= 0.7:
		return 0xFAA61A // yellow
	default:
		return 0x808080 // gray
	}
}

func truncate(s string, max int) string {
	if s == "" {
		return "-"
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
