package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthRegistry_Register(t *testing.T) {
	r := NewHealthRegistry(false, 4, NullLogger())

	require.NoError(t, r.Register("capture"))
	err := r.Register("capture")
	assert.ErrorIs(t, err, ErrDuplicateComponent)
	assert.Equal(t, 1, r.Len())

	rec, err := r.Get("capture")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, rec.Status)
}

func TestHealthRegistry_UnknownComponent(t *testing.T) {
	r := NewHealthRegistry(false, 4, NullLogger())

	assert.ErrorIs(t, r.ReportStatus("ghost", StatusFailed, nil), ErrUnknownComponent)
	_, err := r.Get("ghost")
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestHealthRegistry_FailureBookkeeping(t *testing.T) {
	r := NewHealthRegistry(true, 8, NullLogger())
	require.NoError(t, r.Register("capture"))

	require.NoError(t, r.ReportStatus("capture", StatusFailed, errors.New("device gone")))
	rec, _ := r.Get("capture")
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 1, rec.FailureCount)
	assert.Equal(t, "device gone", rec.LastError)
	assert.False(t, rec.LastFailure.IsZero())

	// a repeated report is the same failure
	require.NoError(t, r.ReportStatus("capture", StatusFailed, errors.New("still gone")))
	rec, _ = r.Get("capture")
	assert.Equal(t, 1, rec.FailureCount)
	assert.Equal(t, "still gone", rec.LastError)

	// both reports signal the recovery engine
	assert.Len(t, r.RecoverySignals(), 2)
}

func TestHealthRegistry_NoSignalWithoutAutoRecovery(t *testing.T) {
	r := NewHealthRegistry(false, 8, NullLogger())
	require.NoError(t, r.Register("capture"))

	require.NoError(t, r.ReportStatus("capture", StatusFailed, nil))
	assert.Len(t, r.RecoverySignals(), 0)
}

func TestHealthRegistry_SignalsCoalesceWhenFull(t *testing.T) {
	r := NewHealthRegistry(true, 1, NullLogger())
	require.NoError(t, r.Register("a"))
	require.NoError(t, r.Register("b"))

	require.NoError(t, r.ReportStatus("a", StatusFailed, nil))
	require.NoError(t, r.ReportStatus("b", StatusFailed, nil))

	assert.Len(t, r.RecoverySignals(), 1)
}

func TestHealthRegistry_FailedToHealthyPassesThroughRecovering(t *testing.T) {
	r := NewHealthRegistry(false, 4, NullLogger())
	require.NoError(t, r.Register("capture"))

	var changes []ComponentChange
	r.AddListener(func(c ComponentChange) { changes = append(changes, c) })

	require.NoError(t, r.ReportStatus("capture", StatusFailed, nil))
	require.NoError(t, r.ReportStatus("capture", StatusHealthy, nil))

	require.Len(t, changes, 3)
	assert.Equal(t, StatusUnknown, changes[0].From)
	assert.Equal(t, StatusFailed, changes[0].To)
	assert.Equal(t, StatusFailed, changes[1].From)
	assert.Equal(t, StatusRecovering, changes[1].To)
	assert.Equal(t, StatusRecovering, changes[2].From)
	assert.Equal(t, StatusHealthy, changes[2].To)
	assert.Equal(t, StatusHealthy, changes[2].Reported)
}

func TestHealthRegistry_RecoveringOnlyFromFailed(t *testing.T) {
	r := NewHealthRegistry(false, 4, NullLogger())
	require.NoError(t, r.Register("capture"))

	assert.ErrorIs(t, r.ReportStatus("capture", StatusRecovering, nil), ErrInvalidTransition)
	assert.ErrorIs(t, r.ReportStatus("capture", StatusUnknown, nil), ErrInvalidTransition)

	require.NoError(t, r.ReportStatus("capture", StatusFailed, nil))
	require.NoError(t, r.ReportStatus("capture", StatusRecovering, nil))
	rec, _ := r.Get("capture")
	assert.Equal(t, StatusRecovering, rec.Status)

	require.NoError(t, r.ReportStatus("capture", StatusHealthy, nil))
	rec, _ = r.Get("capture")
	assert.Equal(t, StatusHealthy, rec.Status)
}

func TestHealthRegistry_ExhaustedIgnoresHealthy(t *testing.T) {
	r := NewHealthRegistry(true, 8, NullLogger())
	require.NoError(t, r.Register("capture"))
	require.NoError(t, r.ReportStatus("capture", StatusFailed, nil))

	require.NoError(t, r.beginRecovery("capture", 1))
	_, exhausted := r.completeRecovery("capture", false, 1, "restart failed")
	assert.True(t, exhausted)

	require.NoError(t, r.ReportStatus("capture", StatusHealthy, nil))
	rec, _ := r.Get("capture")
	assert.Equal(t, StatusFailed, rec.Status)
	assert.True(t, rec.Exhausted)
	assert.Equal(t, 1, rec.RecoveryAttempts)

	err := r.beginRecovery("capture", 1)
	assert.True(t, IsRecoveryExhausted(err))

	failed := r.ResetAll()
	assert.Equal(t, []string{"capture"}, failed)
	rec, _ = r.Get("capture")
	assert.False(t, rec.Exhausted)
	assert.Equal(t, 0, rec.RecoveryAttempts)
}

func TestHealthRegistry_IgnoredReportsLeaveRecordUntouched(t *testing.T) {
	r := NewHealthRegistry(false, 4, NullLogger())
	require.NoError(t, r.Register("capture"))
	require.NoError(t, r.ReportStatus("capture", StatusFailed, nil))
	require.NoError(t, r.beginRecovery("capture", 1))
	r.completeRecovery("capture", false, 1, "restart failed")

	before, _ := r.Get("capture")
	require.True(t, before.Exhausted)
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, r.ReportStatus("capture", StatusHealthy, nil))
	require.NoError(t, r.ReportStatus("capture", StatusDegraded, errors.New("slow")))

	after, _ := r.Get("capture")
	assert.Equal(t, before.LastCheck, after.LastCheck)
	assert.Equal(t, "restart failed", after.LastError)
	assert.Equal(t, StatusFailed, after.Status)
}

func TestHealthRegistry_PassiveReportsDuringRecovery(t *testing.T) {
	r := NewHealthRegistry(false, 4, NullLogger())
	require.NoError(t, r.Register("capture"))
	require.NoError(t, r.ReportStatus("capture", StatusFailed, nil))
	require.NoError(t, r.beginRecovery("capture", 3))

	require.NoError(t, r.ReportStatus("capture", StatusHealthy, nil))
	require.NoError(t, r.ReportStatus("capture", StatusFailed, errors.New("late")))

	rec, _ := r.Get("capture")
	assert.Equal(t, StatusRecovering, rec.Status)
	assert.Equal(t, 1, rec.FailureCount)

	rec, exhausted := r.completeRecovery("capture", true, 3, "")
	assert.False(t, exhausted)
	assert.Equal(t, StatusHealthy, rec.Status)
	assert.Equal(t, 0, rec.RecoveryAttempts)
}

func TestHealthRegistry_AttemptsNeverExceedMax(t *testing.T) {
	const maxAttempts = 3
	r := NewHealthRegistry(true, 64, NullLogger())
	require.NoError(t, r.Register("capture"))

	for i := 0; i < 10; i++ {
		require.NoError(t, r.ReportStatus("capture", StatusFailed, nil))
		if err := r.beginRecovery("capture", maxAttempts); err == nil {
			r.completeRecovery("capture", false, maxAttempts, "")
		}
		rec, _ := r.Get("capture")
		assert.LessOrEqual(t, rec.RecoveryAttempts, maxAttempts)
	}

	rec, _ := r.Get("capture")
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, maxAttempts, rec.RecoveryAttempts)
}

func TestHealthRegistry_OverallStatus(t *testing.T) {
	r := NewHealthRegistry(false, 4, NullLogger())
	require.NoError(t, r.Register("a"))
	require.NoError(t, r.Register("b"))

	assert.Equal(t, OverallHealthy, r.OverallStatus())

	require.NoError(t, r.ReportStatus("a", StatusDegraded, nil))
	assert.Equal(t, OverallDegraded, r.OverallStatus())

	require.NoError(t, r.ReportStatus("b", StatusFailed, nil))
	assert.Equal(t, OverallComponentsFailed, r.OverallStatus())
}

func TestHealthRegistry_GetAllReturnsSortedCopies(t *testing.T) {
	r := NewHealthRegistry(false, 4, NullLogger())
	require.NoError(t, r.Register("zeta"))
	require.NoError(t, r.Register("alpha"))

	all := r.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "zeta", all[1].Name)

	all[0].Status = StatusFailed
	rec, _ := r.Get("alpha")
	assert.Equal(t, StatusUnknown, rec.Status)
}

func TestHealthRegistry_ConcurrentReports(t *testing.T) {
	r := NewHealthRegistry(true, 4, NullLogger())
	require.NoError(t, r.Register("capture"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.ReportStatus("capture", StatusFailed, nil)
		}()
		go func() {
			defer wg.Done()
			_ = r.ReportStatus("capture", StatusHealthy, nil)
			_ = r.GetAll()
		}()
	}
	wg.Wait()

	rec, err := r.Get("capture")
	require.NoError(t, err)
	assert.Contains(t, []ComponentStatus{StatusFailed, StatusHealthy}, rec.Status)
}
