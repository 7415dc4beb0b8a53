package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Status shows the pipeline state, input method and component health
func (c *Commands) Status() Reply {
	return Reply{Embed: StatusEmbed(c.pipeline.Status())}
}

// StatusEmbed renders a status report
func StatusEmbed(report pipeline.StatusReport) *discordgo.MessageEmbed {
	components := make([]string, 0, len(report.Components))
	for _, record := range report.Components {
		line := fmt.Sprintf("%s `%s` %s", statusEmoji(record.Status), record.Name, record.Status)
		if record.Exhausted {
			line += " (recovery exhausted)"
		} else if record.FailureCount > 0 {
			line += fmt.Sprintf(" (%d failures)", record.FailureCount)
		}
		components = append(components, line)
	}
	if len(components) == 0 {
		components = append(components, "No components registered")
	}

	uptime := report.Uptime
	if uptime == "" {
		uptime = "-"
	}

	return &discordgo.MessageEmbed{
		Title:       "🩺 Pipeline Status",
		Description: fmt.Sprintf("Pipeline `%s`", report.PipelineID),
		Color:       overallColor(report.Overall),
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "State",
				Value:  report.State.String(),
				Inline: true,
			},
			{
				Name:   "Health",
				Value:  report.Overall.String(),
				Inline: true,
			},
			{
				Name:   "Input",
				Value:  report.InputMethod.String(),
				Inline: true,
			},
			{
				Name:   "Components",
				Value:  strings.Join(components, "\n"),
				Inline: false,
			},
			{
				Name:   "Counters",
				Value:  formatCounters(report.Metrics),
				Inline: false,
			},
			{
				Name:   "Uptime",
				Value:  uptime,
				Inline: true,
			},
		},
	}
}

func statusEmoji(status pipeline.ComponentStatus) string {
	switch status {
	case pipeline.StatusHealthy:
		return "🟢"
	case pipeline.StatusDegraded:
		return "🟡"
	case pipeline.StatusRecovering:
		return "🔄"
	case pipeline.StatusFailed:
		return "🔴"
	default:
		return "⚪"
	}
}

func overallColor(status pipeline.OverallStatus) int {
	switch status {
	case pipeline.OverallHealthy:
		return 0x00ff00
	case pipeline.OverallDegraded:
		return 0xffa500
	default:
		return 0xff0000
	}
}

func formatCounters(metrics map[string]int64) string {
	if len(metrics) == 0 {
		return "-"
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %d", name, metrics[name]))
	}
	return strings.Join(lines, "\n")
}
