// Package jobs orchestrates asynchronous analytics work: submission,
// a fixed worker pool, cooperative cancellation, throttled progress
// reporting and a durable ledger of terminal outcomes. Runners wrap the
// backtest and risk engines; the registry is the single source of truth
// for job state within the process.
package jobs

import (
	"context"
	"errors"
	"time"
)

// JobKind identifies what a job computes.
type JobKind string

const (
	KindBacktest   JobKind = "backtest"
	KindCompare    JobKind = "compare"
	KindMonteCarlo JobKind = "monte_carlo"
	KindStressTest JobKind = "stress_test"
)

// JobState is the lifecycle state of a job. COMPLETED, FAILED and
// CANCELLED are terminal; a terminal job never transitions again.
type JobState string

const (
	StatePending   JobState = "PENDING"
	StateRunning   JobState = "RUNNING"
	StateCompleted JobState = "COMPLETED"
	StateFailed    JobState = "FAILED"
	StateCancelled JobState = "CANCELLED"
)

// AllStates lists every lifecycle state, non-terminal first.
var AllStates = []JobState{StatePending, StateRunning, StateCompleted, StateFailed, StateCancelled}

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ErrFailed marks a result lookup on a job whose runner failed. The
// recorded failure message is wrapped alongside it.
var ErrFailed = errors.New("job failed")

// Job is one unit of asynchronous work. Progress is a percentage in
// [0,100]; Error is set on FAILED jobs only.
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	State       JobState   `json:"state"`
	Description string     `json:"description"`
	Progress    float64    `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// payload is the decoded input the runner executes. It lives only in
	// the submitting process and is never persisted or exposed.
	payload any
}

// Input returns the payload the job was submitted with.
func (j *Job) Input() any { return j.payload }

// snapshot returns a deep copy safe to hand outside the registry lock.
// The payload is deliberately dropped.
func (j *Job) snapshot() *Job {
	cp := *j
	cp.payload = nil
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Runner executes one kind of job. Implementations must honour ctx
// cancellation at their checkpoints and report progress through the
// supplied reporter.
type Runner interface {
	Run(ctx context.Context, job *Job, progress *ProgressReporter) (any, error)
}

// KindDescription returns a human-readable description for a job kind.
func KindDescription(kind JobKind) string {
	switch kind {
	case KindBacktest:
		return "Running backtest"
	case KindCompare:
		return "Comparing strategies"
	case KindMonteCarlo:
		return "Simulating portfolio paths"
	case KindStressTest:
		return "Stressing portfolio scenarios"
	}
	return string(kind)
}
