package events

import (
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// JobProgressInfo contains progress information for long-running jobs
type JobProgressInfo struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
	Phase   string `json:"phase,omitempty"`
}

// JobStatusData contains data for all job lifecycle events.
// The Status field selects which lifecycle event the payload belongs to.
type JobStatusData struct {
	JobID       string           `json:"job_id"`
	JobKind     string           `json:"job_kind"`
	Status      string           `json:"status"` // "queued", "started", "progress", "completed", "failed", "cancelled"
	Description string           `json:"description,omitempty"`
	Progress    *JobProgressInfo `json:"progress,omitempty"`
	Error       string           `json:"error,omitempty"`
	Duration    float64          `json:"duration_seconds,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// EventType returns the event type for JobStatusData based on its status
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "queued":
		return JobQueued
	case "started":
		return JobStarted
	case "progress":
		return JobProgress
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	case "cancelled":
		return JobCancelled
	default:
		return JobQueued
	}
}

// BarsIngestedData contains data for BarsIngested events
type BarsIngestedData struct {
	Symbol string `json:"symbol"`
	Bars   int    `json:"bars"`
	Source string `json:"source"` // "csv", "json" or "synthetic"
}

// EventType returns the event type for BarsIngestedData
func (d *BarsIngestedData) EventType() EventType {
	return BarsIngested
}

// CacheSweptData contains data for CacheSwept events
type CacheSweptData struct {
	Entries int `json:"entries"`
}

// EventType returns the event type for CacheSweptData
func (d *CacheSweptData) EventType() EventType {
	return CacheSwept
}

// MaintenanceCompletedData contains data for MaintenanceCompleted events
type MaintenanceCompletedData struct {
	Task     string  `json:"task"` // "job_retention", "wal_checkpoint", "cache_sweep"
	Duration float64 `json:"duration_seconds"`
	Removed  int     `json:"removed,omitempty"`
}

// EventType returns the event type for MaintenanceCompletedData
func (d *MaintenanceCompletedData) EventType() EventType {
	return MaintenanceCompleted
}

// SystemStatusChangedData contains data for SystemStatusChanged events
type SystemStatusChangedData struct {
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for SystemStatusChangedData
func (d *SystemStatusChangedData) EventType() EventType {
	return SystemStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
