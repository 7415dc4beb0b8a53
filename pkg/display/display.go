// Package display contains the answer sinks used by the pipeline
package display

import (
	"context"
	"errors"
	"fmt"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Answer is the payload shown by every display
type Answer = pipeline.Answer

// Multi shows every answer on several displays. The first display is the
// primary: only its errors fail the call, the others are best effort.
type Multi struct {
	displays []pipeline.Display
	logger   pipeline.Logger
}

// NewMulti fans out to primary followed by mirrors
func NewMulti(logger pipeline.Logger, primary pipeline.Display, mirrors ...pipeline.Display) *Multi {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Multi{
		displays: append([]pipeline.Display{primary}, mirrors...),
		logger:   logger.With(pipeline.String("component", "display")),
	}
}

// Show implements pipeline.Display
func (m *Multi) Show(ctx context.Context, answer Answer) error {
	return m.each(func(d pipeline.Display) error { return d.Show(ctx, answer) })
}

// Hide implements pipeline.Display
func (m *Multi) Hide(ctx context.Context) error {
	return m.each(func(d pipeline.Display) error { return d.Hide(ctx) })
}

func (m *Multi) each(fn func(pipeline.Display) error) error {
	var primaryErr error
	for i, d := range m.displays {
		err := fn(d)
		if err == nil {
			continue
		}
		if i == 0 {
			primaryErr = err
			continue
		}
		m.logger.Warn("Mirror display failed", pipeline.String("display", fmt.Sprintf("%T", d)), pipeline.Error(err))
	}
	return primaryErr
}

// Healthy reports the primary display's health
func (m *Multi) Healthy(ctx context.Context) bool {
	if hc, ok := m.displays[0].(pipeline.HealthChecker); ok {
		return hc.Healthy(ctx)
	}
	return true
}

// Restart restarts every display that supports it
func (m *Multi) Restart(ctx context.Context) error {
	var errs []error
	for _, d := range m.displays {
		if r, ok := d.(pipeline.Restarter); ok {
			if err := r.Restart(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
