package jobs

import (
	"sync"
	"time"

	"github.com/quantleap/quantd/internal/events"
)

// ProgressReporter lets runners report progress during execution. Reports
// are throttled to keep a tight engine loop from flooding the bus; 100%
// completion always bypasses the throttle. Reports after the job went
// terminal are dropped by the manager.
type ProgressReporter struct {
	manager *Manager
	jobID   string
	kind    JobKind

	mu          sync.Mutex
	lastReport  time.Time
	minInterval time.Duration // Minimum interval between progress reports
}

// newProgressReporter creates a reporter with the default 100ms throttle
// (10 updates/sec max) for real-time feel.
func newProgressReporter(m *Manager, jobID string, kind JobKind) *ProgressReporter {
	return &ProgressReporter{
		manager:     m,
		jobID:       jobID,
		kind:        kind,
		minInterval: 100 * time.Millisecond,
	}
}

// Report records a progress sample. Its signature matches the engines'
// progress callbacks, so runners can pass the method straight through.
func (pr *ProgressReporter) Report(current, total int, message string) {
	pr.mu.Lock()
	now := time.Now()
	if now.Sub(pr.lastReport) < pr.minInterval && current != total {
		pr.mu.Unlock()
		return
	}
	pr.lastReport = now
	pr.mu.Unlock()

	percent := 0.0
	if total > 0 {
		percent = 100 * float64(current) / float64(total)
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	if !pr.manager.updateProgress(pr.jobID, percent, current, total, message) {
		return
	}
	pr.emit(current, total, message)
}

// ReportMessage records an indeterminate progress message (no counts).
// The job's progress percentage is left where it was.
func (pr *ProgressReporter) ReportMessage(message string) {
	pr.mu.Lock()
	now := time.Now()
	if now.Sub(pr.lastReport) < pr.minInterval {
		pr.mu.Unlock()
		return
	}
	pr.lastReport = now
	pr.mu.Unlock()

	if !pr.manager.updateProgress(pr.jobID, keepPercent, 0, 0, message) {
		return
	}
	pr.emit(0, 0, message)
}

// emit publishes the JOB_PROGRESS event.
func (pr *ProgressReporter) emit(current, total int, message string) {
	em := pr.manager.events
	if em == nil {
		return
	}
	em.EmitTyped(events.JobProgress, "jobs", &events.JobStatusData{
		JobID:       pr.jobID,
		JobKind:     string(pr.kind),
		Status:      "progress",
		Description: KindDescription(pr.kind),
		Progress: &events.JobProgressInfo{
			Current: current,
			Total:   total,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	})
}
