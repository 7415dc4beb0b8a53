package commands

import (
	"errors"
	"fmt"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Recover lets the bot owner run a full system recovery
func (c *Commands) Recover(authorID, reason string) Reply {
	if reply, ok := c.isOwner(authorID); !ok {
		return reply
	}

	if reason == "" {
		reason = "requested over discord"
	}

	if err := c.pipeline.FullRecovery(reason); err != nil {
		if errors.Is(err, pipeline.ErrPipelineNotRunning) {
			return Reply{Content: "❌ The pipeline is not running."}
		}
		return Reply{Content: fmt.Sprintf("❌ Recovery failed: %v", err)}
	}

	embed := StatusEmbed(c.pipeline.Status())
	embed.Title = "✅ Recovery Complete"
	return Reply{Embed: embed}
}
