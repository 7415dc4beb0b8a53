package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Help lists every command
func (c *Commands) Help() Reply {
	p := c.prefix
	embed := &discordgo.MessageEmbed{
		Title:       "Sasayaki",
		Description: "Here are all the available commands for the bot:",
		Color:       0x00ff00, // Green color
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Pipeline Commands",
				Value: strings.Join([]string{
					fmt.Sprintf("• `%sask <question>` / `%sa <question>` - Type a question when audio is not usable", p, p),
					fmt.Sprintf("• `%sstatus` / `%ss` - Show pipeline state and component health", p, p),
					"• Mention the bot with a question to ask it directly",
				}, "\n"),
				Inline: false,
			},
			{
				Name: "ℹInformation Commands",
				Value: strings.Join([]string{
					fmt.Sprintf("• `%sabout` - Show bot info, uptime, and stats", p),
					fmt.Sprintf("• `%shelp` / `%sh` - Show this help message", p, p),
				}, "\n"),
				Inline: false,
			},
			{
				Name: "Admin Commands (Bot Owner Only)",
				Value: strings.Join([]string{
					fmt.Sprintf("• `%srecover [reason]` - Reset every component and restart the pipeline", p),
					fmt.Sprintf("• `%sutility cron` - Show the status report schedule", p),
					fmt.Sprintf("• `%sutility events` - Show the latest pipeline events", p),
				}, "\n"),
				Inline: false,
			},
			{
				Name: "💡 Tips",
				Value: strings.Join([]string{
					"• React with ❌ on a shown answer to hide it",
					"• Typed questions always work, even when every capture source is down",
				}, "\n"),
				Inline: false,
			},
		},
	}

	return Reply{Embed: embed}
}
