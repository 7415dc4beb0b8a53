package presence

import (
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu      sync.Mutex
	updates []discordgo.UpdateStatusData
	err     error
}

func (f *fakeSession) UpdateStatusComplex(usd discordgo.UpdateStatusData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, usd)
	return nil
}

type fakeSource struct {
	report pipeline.StatusReport
}

func (f *fakeSource) Status() pipeline.StatusReport { return f.report }

func TestPresenceFor(t *testing.T) {
	tests := []struct {
		name   string
		report pipeline.StatusReport
		status string
	}{
		{"healthy", pipeline.StatusReport{State: pipeline.StateRunning, Overall: pipeline.OverallHealthy}, "online"},
		{"degraded", pipeline.StatusReport{State: pipeline.StateDegraded, Overall: pipeline.OverallDegraded, InputMethod: pipeline.MethodManual}, "idle"},
		{"failed", pipeline.StatusReport{State: pipeline.StateDegraded, Overall: pipeline.OverallComponentsFailed}, "dnd"},
		{"stopped", pipeline.StatusReport{State: pipeline.StateIdle, Overall: pipeline.OverallHealthy}, "dnd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			presence := PresenceFor(tt.report)
			assert.Equal(t, tt.status, presence.Status)
			require.Len(t, presence.Activities, 1)
			assert.Equal(t, discordgo.ActivityTypeListening, presence.Activities[0].Type)
		})
	}

	presence := PresenceFor(tests[1].report)
	assert.Equal(t, "degraded via manual input", presence.Activities[0].State)
}

func TestUpdateSkipsUnchangedPresence(t *testing.T) {
	session := &fakeSession{}
	source := &fakeSource{report: pipeline.StatusReport{State: pipeline.StateRunning}}
	pm := NewPresenceManager(session, source, nil)

	pm.Update()
	pm.Update()
	assert.Len(t, session.updates, 1)
	assert.NotEmpty(t, pm.Current())

	source.report.InputMethod = pipeline.MethodSecondary
	pm.Update()
	assert.Len(t, session.updates, 2)
}

func TestUpdateRetriesAfterFailure(t *testing.T) {
	session := &fakeSession{err: errors.New("websocket closed")}
	pm := NewPresenceManager(session, &fakeSource{}, nil)

	pm.Update()
	assert.Empty(t, pm.Current())

	session.err = nil
	pm.Update()
	assert.Len(t, session.updates, 1)
}
