package transcribe

import (
	"context"
	"strings"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Passthrough treats captured bytes as UTF-8 text. It pairs with text
// sources such as capture.TextInbox.
type Passthrough struct{}

// Transcribe implements pipeline.Transcriber
func (Passthrough) Transcribe(ctx context.Context, data []byte) (pipeline.Transcription, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Transcription{}, err
	}

	text := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
	if text == "" {
		return pipeline.Transcription{}, nil
	}
	return pipeline.Transcription{Text: text, Confidence: 1.0}, nil
}
