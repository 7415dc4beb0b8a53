package commands

import (
	"fmt"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
)

// About shows bot information including uptime, memory usage and Go version
func (c *Commands) About() Reply {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryUsage := fmt.Sprintf("%.2f MB", float64(memStats.Alloc)/1024/1024)

	report := c.pipeline.Status()

	embed := &discordgo.MessageEmbed{
		Title:       "Bot Information",
		Description: "Listens to interview questions and suggests answers",
		Color:       0x00ff00, // Green color
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Pipeline",
				Value:  report.PipelineID,
				Inline: true,
			},
			{
				Name:   "Uptime",
				Value:  formatUptime(time.Since(c.startedAt)),
				Inline: true,
			},
			{
				Name:   "Memory Usage",
				Value:  memoryUsage,
				Inline: true,
			},
			{
				Name:   "Go Version",
				Value:  runtime.Version(),
				Inline: true,
			},
			{
				Name:   "Platform",
				Value:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
				Inline: true,
			},
			{
				Name:   "Goroutines",
				Value:  fmt.Sprintf("%d", runtime.NumGoroutine()),
				Inline: true,
			},
		},
	}

	return Reply{Embed: embed}
}

// formatUptime formats the uptime duration into a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	} else if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
