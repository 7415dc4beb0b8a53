package commands

import (
	"errors"
	"fmt"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Ask submits a typed question as manual input
func (c *Commands) Ask(text string) Reply {
	err := c.pipeline.SubmitManualInput(text)
	switch {
	case err == nil:
		return Reply{Content: "📝 Question queued, the answer will show up on the display."}
	case errors.Is(err, pipeline.ErrEmptyInput):
		return Reply{Content: fmt.Sprintf("❌ Please type a question.\n\n**Usage:** `%sask <question>`", c.prefix)}
	case errors.Is(err, pipeline.ErrPipelineNotRunning):
		return Reply{Content: "❌ The pipeline is not running."}
	default:
		return Reply{Content: fmt.Sprintf("❌ Failed to queue question: %v", err)}
	}
}
