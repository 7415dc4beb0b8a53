package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const eventsShown = 10

// Utility handles owner-only maintenance subcommands
func (c *Commands) Utility(authorID string, args []string) Reply {
	usage := fmt.Sprintf("**Available subcommands:**\n• `cron` - Check the status report job\n• `events` - Show the latest pipeline events\n\n**Examples:**\n• `%[1]sutility cron`\n• `%[1]sutility events`", c.prefix)

	if len(args) == 0 {
		return Reply{Content: fmt.Sprintf("❌ Please specify a subcommand.\n\n**Usage:** `%sutility <subcommand>`\n%s", c.prefix, usage)}
	}

	if reply, ok := c.isOwner(authorID); !ok {
		return reply
	}

	switch strings.ToLower(args[0]) {
	case "cron":
		return c.cronStatus()
	case "events":
		return c.recentEvents()
	default:
		return Reply{Content: "❌ Unknown subcommand.\n\n" + usage}
	}
}

func (c *Commands) cronStatus() Reply {
	if c.schedule == nil {
		return Reply{Content: "❌ Status reports are disabled."}
	}

	nextRunStr := "Not scheduled"
	if nextRun := c.schedule.GetNextRun(); !nextRun.IsZero() {
		nextRunStr = nextRun.Format("2006-01-02 15:04:05")
	}

	lastRunStr := "Never"
	runs, lastRun := c.schedule.Runs()
	if !lastRun.IsZero() {
		lastRunStr = lastRun.Format("2006-01-02 15:04:05")
	}

	embed := &discordgo.MessageEmbed{
		Title:       "⏰ Cron Job Status",
		Description: "Current status of the scheduled status report",
		Color:       0x7289DA, // Discord blue
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "📅 Schedule",
				Value:  c.schedule.GetSchedule(),
				Inline: true,
			},
			{
				Name:   "⏭️ Next Run",
				Value:  nextRunStr,
				Inline: true,
			},
			{
				Name:   "🏃‍♂️ Currently Running",
				Value:  fmt.Sprintf("%t", c.schedule.IsRunning()),
				Inline: true,
			},
			{
				Name:   "🔢 Completed Runs",
				Value:  fmt.Sprintf("%d", runs),
				Inline: true,
			},
			{
				Name:   "🕒 Last Run",
				Value:  lastRunStr,
				Inline: true,
			},
		},
	}

	return Reply{Embed: embed}
}

func (c *Commands) recentEvents() Reply {
	events := c.pipeline.Events(eventsShown)
	if len(events) == 0 {
		return Reply{Content: "No events recorded yet."}
	}

	lines := make([]string, 0, len(events))
	for _, event := range events {
		line := fmt.Sprintf("`%s` **%s**", event.Timestamp.Format("15:04:05"), event.Type)
		if event.Component != "" {
			line += fmt.Sprintf(" `%s`", event.Component)
		}
		lines = append(lines, line+" "+event.Message)
	}

	embed := &discordgo.MessageEmbed{
		Title:       "📜 Recent Events",
		Description: strings.Join(lines, "\n"),
		Color:       0x7289DA,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
	}

	return Reply{Embed: embed}
}
