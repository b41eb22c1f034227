package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/events"
)

// stubRunner runs a configurable function, defaulting to an immediate
// success.
type stubRunner struct {
	fn func(ctx context.Context, job *Job, progress *ProgressReporter) (any, error)
}

func (r *stubRunner) Run(ctx context.Context, job *Job, progress *ProgressReporter) (any, error) {
	if r.fn == nil {
		return "ok", nil
	}
	return r.fn(ctx, job, progress)
}

func newTestManager() *Manager {
	m := NewManager(nil, nil, zerolog.Nop())
	m.RegisterRunner(KindBacktest, &stubRunner{})
	return m
}

func TestManager_StatusVisibleImmediatelyAfterSubmit(t *testing.T) {
	m := newTestManager()

	id, err := m.Submit(KindBacktest, "payload")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatePending, job.State)
	assert.Equal(t, KindBacktest, job.Kind)
	assert.Equal(t, "Running backtest", job.Description)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.Nil(t, job.Input(), "snapshots must not leak the payload")
}

func TestManager_SubmitRejectsUnregisteredKind(t *testing.T) {
	m := newTestManager()

	_, err := m.Submit(JobKind("sorcery"), nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestManager_StatusUnknownJob(t *testing.T) {
	m := newTestManager()

	_, err := m.Status("no-such-job")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_ResultAcrossLifecycle(t *testing.T) {
	m := newTestManager()

	_, err := m.Result("no-such-job")
	require.ErrorIs(t, err, domain.ErrNotFound)

	id, err := m.Submit(KindBacktest, "payload")
	require.NoError(t, err)

	_, err = m.Result(id)
	require.ErrorIs(t, err, domain.ErrNotReady)

	job, runner, _ := m.claim(id)
	require.NotNil(t, job)
	require.NotNil(t, runner)

	_, err = m.Result(id)
	require.ErrorIs(t, err, domain.ErrNotReady)

	m.finish(id, map[string]float64{"final_value": 10216}, nil)

	result, err := m.Result(id)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"final_value": 10216}, result)

	status, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 100.0, status.Progress)
	require.NotNil(t, status.StartedAt)
	require.NotNil(t, status.CompletedAt)
}

func TestManager_ResultOfFailedJobCarriesError(t *testing.T) {
	m := newTestManager()

	id, err := m.Submit(KindBacktest, nil)
	require.NoError(t, err)
	job, _, _ := m.claim(id)
	require.NotNil(t, job)

	m.finish(id, nil, fmt.Errorf("%w: no bars for GHOST", domain.ErrDataUnavailable))

	_, err = m.Result(id)
	require.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, err.Error(), "no bars for GHOST")

	status, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.Error, "no bars for GHOST")
}

func TestManager_CancelPendingJob(t *testing.T) {
	m := newTestManager()

	id, err := m.Submit(KindBacktest, nil)
	require.NoError(t, err)

	assert.True(t, m.Cancel(id))

	status, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, status.State)
	require.NotNil(t, status.CompletedAt)

	// Idempotent: a terminal job reports false and stays put.
	assert.False(t, m.Cancel(id))
	again, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, again.State)
	assert.Equal(t, status.CompletedAt.Unix(), again.CompletedAt.Unix())

	_, err = m.Result(id)
	require.ErrorIs(t, err, domain.ErrCancelled)

	// The queued id is still in the channel; a worker claiming it must
	// get nothing.
	job, runner, reporter := m.claim(id)
	assert.Nil(t, job)
	assert.Nil(t, runner)
	assert.Nil(t, reporter)
}

func TestManager_CancelUnknownJob(t *testing.T) {
	m := newTestManager()
	assert.False(t, m.Cancel("no-such-job"))
}

func TestManager_TerminalStatesAreImmutable(t *testing.T) {
	m := newTestManager()

	id, err := m.Submit(KindBacktest, nil)
	require.NoError(t, err)
	job, _, _ := m.claim(id)
	require.NotNil(t, job)
	m.finish(id, "first", nil)

	// A late failure report must not overwrite the completed state.
	m.finish(id, nil, fmt.Errorf("%w: too late", domain.ErrNumerical))

	status, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
	assert.Empty(t, status.Error)

	result, err := m.Result(id)
	require.NoError(t, err)
	assert.Equal(t, "first", result)

	// Late progress is discarded too.
	assert.False(t, m.updateProgress(id, 50, 1, 2, "late"))
	status, _ = m.Status(id)
	assert.Equal(t, 100.0, status.Progress)
}

func TestManager_ListNewestFirstWithFilterAndLimit(t *testing.T) {
	m := newTestManager()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.Submit(KindBacktest, i)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all := m.List("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[1], all[1].ID)
	assert.Equal(t, ids[0], all[2].ID)

	limited := m.List("", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, ids[2], limited[0].ID)

	job, _, _ := m.claim(ids[0])
	require.NotNil(t, job)
	m.finish(ids[0], nil, nil)

	completed := m.List(StateCompleted, 0)
	require.Len(t, completed, 1)
	assert.Equal(t, ids[0], completed[0].ID)

	pending := m.List(StatePending, 0)
	require.Len(t, pending, 2)
}

func TestManager_ListSnapshotsAreIsolated(t *testing.T) {
	m := newTestManager()

	id, err := m.Submit(KindBacktest, nil)
	require.NoError(t, err)

	listed := m.List("", 0)
	require.Len(t, listed, 1)
	listed[0].State = StateFailed
	listed[0].Message = "mutated"

	status, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatePending, status.State)
	assert.Empty(t, status.Message)
}

func TestManager_SubscribeProgressUnknownJob(t *testing.T) {
	m := newTestManager()

	_, _, err := m.SubscribeProgress("no-such-job")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_WatcherSeesProgressAndTerminalFrame(t *testing.T) {
	m := newTestManager()

	id, err := m.Submit(KindBacktest, nil)
	require.NoError(t, err)
	job, _, reporter := m.claim(id)
	require.NotNil(t, job)
	reporter.minInterval = 0

	updates, unsubscribe, err := m.SubscribeProgress(id)
	require.NoError(t, err)
	defer unsubscribe()

	reporter.Report(1, 4, "day 1/4")

	update := <-updates
	assert.Equal(t, id, update.JobID)
	assert.Equal(t, StateRunning, update.State)
	assert.InDelta(t, 25.0, update.Progress, 1e-9)
	assert.Equal(t, 1, update.Current)
	assert.Equal(t, 4, update.Total)
	assert.Equal(t, "day 1/4", update.Message)

	m.finish(id, "done", nil)

	terminal := <-updates
	assert.Equal(t, StateCompleted, terminal.State)

	_, open := <-updates
	assert.False(t, open, "channel should close after the terminal frame")
}

func TestManager_EmitsLifecycleEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	em := events.NewManager(bus, zerolog.Nop())
	m := NewManager(nil, em, zerolog.Nop())
	m.RegisterRunner(KindMonteCarlo, &stubRunner{})

	var seen []events.EventType
	for _, et := range []events.EventType{events.JobQueued, events.JobStarted, events.JobProgress, events.JobCompleted} {
		et := et
		bus.Subscribe(et, func(*events.Event) { seen = append(seen, et) })
	}

	id, err := m.Submit(KindMonteCarlo, nil)
	require.NoError(t, err)
	job, _, reporter := m.claim(id)
	require.NotNil(t, job)
	reporter.minInterval = 0
	reporter.Report(2, 2, "simulated")
	m.finish(id, nil, nil)

	assert.Equal(t, []events.EventType{
		events.JobQueued, events.JobStarted, events.JobProgress, events.JobCompleted,
	}, seen)
}

func TestManager_PruneDropsOldTerminalJobs(t *testing.T) {
	m := newTestManager()

	oldID, err := m.Submit(KindBacktest, nil)
	require.NoError(t, err)
	job, _, _ := m.claim(oldID)
	require.NotNil(t, job)
	m.finish(oldID, "stale", nil)

	freshID, err := m.Submit(KindBacktest, nil)
	require.NoError(t, err)

	// Age the terminal job past the retention window.
	m.mu.Lock()
	aged := time.Now().UTC().Add(-40 * 24 * time.Hour)
	m.jobs[oldID].CompletedAt = &aged
	m.mu.Unlock()

	removed, err := m.Prune(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.Status(oldID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.Result(oldID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Live and recent jobs survive.
	_, err = m.Status(freshID)
	require.NoError(t, err)
	assert.Len(t, m.List("", 0), 1)
}
