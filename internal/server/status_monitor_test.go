package server

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/events"
	"github.com/quantleap/quantd/internal/jobs"
)

type statusRecorder struct {
	mu   sync.Mutex
	seen []*events.Event
}

func (r *statusRecorder) record(event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, event)
}

func (r *statusRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func (r *statusRecorder) last() *events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return nil
	}
	return r.seen[len(r.seen)-1]
}

func newStatusMonitorEnv(t *testing.T) (*StatusMonitor, *jobs.Manager, *statusRecorder) {
	t.Helper()
	nop := zerolog.New(nil).Level(zerolog.Disabled)

	bus := events.NewBus(nop)
	em := events.NewManager(bus, nop)
	manager := jobs.NewManager(nil, em, nop)
	manager.RegisterRunner("stress_test", stubRunner{})

	recorder := &statusRecorder{}
	unsubscribe := bus.Subscribe(events.SystemStatusChanged, recorder.record)
	t.Cleanup(unsubscribe)

	return NewStatusMonitor(em, manager, nop), manager, recorder
}

func TestStatusMonitor_EmitsOnWorkloadChange(t *testing.T) {
	monitor, manager, recorder := newStatusMonitorEnv(t)

	// First sample always reports.
	monitor.check()
	require.Equal(t, 1, recorder.count())
	assert.Equal(t, "0 running, 0 pending", recorder.last().Data["status"])

	// Unchanged workload stays quiet.
	monitor.check()
	assert.Equal(t, 1, recorder.count())

	_, err := manager.Submit("stress_test", nil)
	require.NoError(t, err)

	monitor.check()
	require.Equal(t, 2, recorder.count())
	assert.Equal(t, "0 running, 1 pending", recorder.last().Data["status"])
}

func TestStatusMonitor_StartStop(t *testing.T) {
	monitor, _, recorder := newStatusMonitorEnv(t)

	monitor.Start(10 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return recorder.count() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.NotPanics(t, monitor.Stop)
}
