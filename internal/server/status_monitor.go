package server

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/events"
	"github.com/quantleap/quantd/internal/jobs"
)

// StatusMonitor periodically samples the job registry and emits a
// SYSTEM_STATUS_CHANGED event whenever the workload picture changes.
type StatusMonitor struct {
	events  *events.Manager
	manager *jobs.Manager
	log     zerolog.Logger

	stop chan struct{}

	lastCounts map[jobs.JobState]int
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(em *events.Manager, manager *jobs.Manager, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		events:  em,
		manager: manager,
		log:     log.With().Str("component", "status_monitor").Logger(),
		stop:    make(chan struct{}),
	}
}

// Start begins periodic status monitoring
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// Stop halts the monitoring loop. Safe to call once.
func (m *StatusMonitor) Stop() {
	close(m.stop)
}

// monitor runs the periodic monitoring loop
func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.check()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

// check compares the current per-state job counts against the previous
// sample and emits an event on any change.
func (m *StatusMonitor) check() {
	counts := m.manager.Counts()
	if m.lastCounts != nil && equalCounts(counts, m.lastCounts) {
		return
	}
	m.lastCounts = counts

	m.events.EmitTyped(events.SystemStatusChanged, "status_monitor", &events.SystemStatusChangedData{
		Status: fmt.Sprintf("%d running, %d pending",
			counts[jobs.StateRunning], counts[jobs.StatePending]),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func equalCounts(a, b map[jobs.JobState]int) bool {
	for _, state := range jobs.AllStates {
		if a[state] != b[state] {
			return false
		}
	}
	return true
}
