package presence

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// StatusUpdater is the part of the Discord session that sets presence
type StatusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// StatusSource provides the pipeline status shown in the presence
type StatusSource interface {
	Status() pipeline.StatusReport
}

// PresenceManager mirrors the pipeline state into the bot's presence
type PresenceManager struct {
	session StatusUpdater
	source  StatusSource
	logger  pipeline.Logger

	mu      sync.Mutex
	current string
}

// NewPresenceManager creates a new presence manager
func NewPresenceManager(session StatusUpdater, source StatusSource, logger pipeline.Logger) *PresenceManager {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &PresenceManager{
		session: session,
		source:  source,
		logger:  logger.With(pipeline.String("component", "presence")),
	}
}

// Update sets the presence from the current status. Unchanged presences
// are not resent.
func (pm *PresenceManager) Update() {
	presence := PresenceFor(pm.source.Status())
	key := presence.Status + "|" + presence.Activities[0].Name + "|" + presence.Activities[0].State

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if key == pm.current {
		return
	}

	if err := pm.session.UpdateStatusComplex(presence); err != nil {
		pm.logger.Warn("Failed to update bot presence", pipeline.Error(err))
		return
	}
	pm.current = key
}

// Current returns the last presence sent, empty before the first update
func (pm *PresenceManager) Current() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.current
}

// StartPeriodicUpdates updates the presence every interval until ctx is done
func (pm *PresenceManager) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		pm.Update()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pm.Update()
			}
		}
	}()
}

// PresenceFor maps a status report to a presence: online while healthy,
// idle while degraded and dnd when components failed or the pipeline is down
func PresenceFor(report pipeline.StatusReport) discordgo.UpdateStatusData {
	status := "online"
	switch {
	case report.State != pipeline.StateRunning && report.State != pipeline.StateDegraded:
		status = "dnd"
	case report.Overall == pipeline.OverallComponentsFailed:
		status = "dnd"
	case report.Overall == pipeline.OverallDegraded || report.State == pipeline.StateDegraded:
		status = "idle"
	}

	return discordgo.UpdateStatusData{
		Status: status,
		Activities: []*discordgo.Activity{
			{
				Name:  "the interview",
				Type:  discordgo.ActivityTypeListening,
				State: report.State.String() + " via " + report.InputMethod.String() + " input",
			},
		},
	}
}
