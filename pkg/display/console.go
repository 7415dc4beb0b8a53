package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ConsoleDisplay writes answers to a terminal or any writer
type ConsoleDisplay struct {
	mu      sync.Mutex
	w       io.Writer
	visible bool
	lastErr error
}

// NewConsoleDisplay creates a display writing to w
func NewConsoleDisplay(w io.Writer) *ConsoleDisplay {
	return &ConsoleDisplay{w: w}
}

// Show implements pipeline.Display
func (d *ConsoleDisplay) Show(ctx context.Context, answer Answer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== %s (%.0f%%) ===\n", strings.ToUpper(strings.ReplaceAll(answer.Category, "_", " ")), answer.Confidence*100)
	fmt.Fprintf(&b, "Q: %s\n", answer.Question)
	b.WriteString(strings.TrimRight(answer.Body, "\n"))
	b.WriteString("\n")

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := io.WriteString(d.w, b.String())
	d.lastErr = err
	if err == nil {
		d.visible = true
	}
	return err
}

// Hide implements pipeline.Display
func (d *ConsoleDisplay) Hide(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.visible {
		return nil
	}
	_, err := io.WriteString(d.w, "=== hidden ===\n")
	d.lastErr = err
	if err == nil {
		d.visible = false
	}
	return err
}

// Healthy reports whether the last write succeeded
func (d *ConsoleDisplay) Healthy(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr == nil
}
