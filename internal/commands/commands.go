package commands

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

const footerText = "Sasayaki | interview assistant"

// Reply is the response to a command. It is sent as a channel message or
// as an interaction response.
type Reply struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

// Schedule describes the scheduled status report
type Schedule interface {
	GetSchedule() string
	GetNextRun() time.Time
	IsRunning() bool
	Runs() (int, time.Time)
}

// Commands runs bot commands against the pipeline
type Commands struct {
	pipeline  pipeline.PipelineManager
	schedule  Schedule
	ownerID   string
	prefix    string
	startedAt time.Time
}

// New creates the command set. schedule may be nil when reports are
// disabled; an empty ownerID disables the owner commands.
func New(p pipeline.PipelineManager, schedule Schedule, ownerID, prefix string) *Commands {
	if prefix == "" {
		prefix = "!"
	}
	return &Commands{
		pipeline:  p,
		schedule:  schedule,
		ownerID:   ownerID,
		prefix:    prefix,
		startedAt: time.Now(),
	}
}

// Prefix returns the text command prefix
func (c *Commands) Prefix() string {
	return c.prefix
}

// Run dispatches a command by name. ok is false for unknown commands.
func (c *Commands) Run(name string, args []string, authorID string) (reply Reply, ok bool) {
	switch strings.ToLower(name) {
	case "ask", "a":
		return c.Ask(strings.Join(args, " ")), true
	case "status", "s":
		return c.Status(), true
	case "recover":
		return c.Recover(authorID, strings.Join(args, " ")), true
	case "utility":
		return c.Utility(authorID, args), true
	case "about":
		return c.About(), true
	case "help", "h":
		return c.Help(), true
	default:
		return Reply{}, false
	}
}

func (c *Commands) isOwner(authorID string) (Reply, bool) {
	if c.ownerID == "" {
		return Reply{Content: "❌ Bot owner ID not configured."}, false
	}
	if authorID != c.ownerID {
		return Reply{Content: "❌ This command is restricted to the bot owner only."}, false
	}
	return Reply{}, true
}
