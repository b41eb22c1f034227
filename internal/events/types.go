// Package events provides event management functionality.
package events

// EventType represents different event types
type EventType string

const (
	// Job lifecycle event types
	JobQueued    EventType = "JOB_QUEUED"
	JobStarted   EventType = "JOB_STARTED"
	JobProgress  EventType = "JOB_PROGRESS"
	JobCompleted EventType = "JOB_COMPLETED"
	JobFailed    EventType = "JOB_FAILED"
	JobCancelled EventType = "JOB_CANCELLED"

	// Market data event types
	BarsIngested EventType = "BARS_INGESTED"

	// Maintenance event types
	CacheSwept           EventType = "CACHE_SWEPT"
	MaintenanceCompleted EventType = "MAINTENANCE_COMPLETED"

	// System event types
	SystemStatusChanged EventType = "SYSTEM_STATUS_CHANGED"
	ErrorOccurred       EventType = "ERROR_OCCURRED"
)

// AllEventTypes returns every event type the unified stream subscribes to
// when no filter is given.
func AllEventTypes() []EventType {
	return []EventType{
		JobQueued,
		JobStarted,
		JobProgress,
		JobCompleted,
		JobFailed,
		JobCancelled,
		BarsIngested,
		CacheSwept,
		MaintenanceCompleted,
		SystemStatusChanged,
		ErrorOccurred,
	}
}
