package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/events"
)

// queueCapacity bounds how many submitted jobs can wait for a worker.
const queueCapacity = 256

// maxListLimit caps how many jobs a single List call returns.
const maxListLimit = 100

// watcherBuffer is the per-subscriber channel depth. Slow consumers lose
// intermediate progress frames, never the terminal one.
const watcherBuffer = 16

// ProgressUpdate is one frame pushed to per-job subscribers. State carries
// the job state at emission time so a single frame stream can end cleanly
// on a terminal update.
type ProgressUpdate struct {
	JobID    string   `json:"job_id"`
	State    JobState `json:"state"`
	Progress float64  `json:"progress"`
	Current  int      `json:"current"`
	Total    int      `json:"total"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Manager owns the job registry. All state transitions go through it; the
// registry is strongly consistent within the process, so Status immediately
// after Submit never misses. Terminal rows and result blobs are persisted
// through the store when one is configured.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	order    []string // submission order, oldest first
	results  map[string]any
	cancels  map[string]context.CancelFunc
	watchers map[string]map[uint64]chan ProgressUpdate
	nextSub  uint64

	runners map[JobKind]Runner
	queue   chan string
	store   *Store
	events  *events.Manager
	log     zerolog.Logger
}

// NewManager creates a job manager. store may be nil for a purely
// in-memory registry; em may be nil to disable event emission.
func NewManager(store *Store, em *events.Manager, log zerolog.Logger) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		results:  make(map[string]any),
		cancels:  make(map[string]context.CancelFunc),
		watchers: make(map[string]map[uint64]chan ProgressUpdate),
		runners:  make(map[JobKind]Runner),
		queue:    make(chan string, queueCapacity),
		store:    store,
		events:   em,
		log:      log.With().Str("component", "job_manager").Logger(),
	}
}

// RegisterRunner binds a runner to a job kind. Submissions of unregistered
// kinds are rejected.
func (m *Manager) RegisterRunner(kind JobKind, runner Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners[kind] = runner
}

// Kinds returns the registered job kinds.
func (m *Manager) Kinds() []JobKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]JobKind, 0, len(m.runners))
	for k := range m.runners {
		kinds = append(kinds, k)
	}
	return kinds
}

// Submit creates a PENDING job for the payload and queues it for the
// worker pool. The returned id is immediately visible to Status.
func (m *Manager) Submit(kind JobKind, payload any) (string, error) {
	m.mu.Lock()
	if _, ok := m.runners[kind]; !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: no runner registered for job kind %q", domain.ErrValidation, kind)
	}

	job := &Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		State:       StatePending,
		Description: KindDescription(kind),
		CreatedAt:   time.Now().UTC(),
		payload:     payload,
	}

	// Reserve the queue slot while holding the lock so a worker that pops
	// the id always finds the job registered.
	select {
	case m.queue <- job.ID:
	default:
		m.mu.Unlock()
		return "", fmt.Errorf("job queue is full (%d pending)", queueCapacity)
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.mu.Unlock()

	m.persist(job)
	m.emitLifecycle(job, "queued")
	m.log.Info().Str("job_id", job.ID).Str("kind", string(kind)).Msg("Job submitted")
	return job.ID, nil
}

// Status returns a snapshot of the job.
func (m *Manager) Status(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return job.snapshot(), nil
}

// Result returns the payload of a COMPLETED job. FAILED jobs surface
// their recorded error, CANCELLED jobs ErrCancelled, and anything still
// moving ErrNotReady.
func (m *Manager) Result(id string) (any, error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	state := job.State
	failure := job.Error
	result, inMemory := m.results[id]
	m.mu.Unlock()

	switch state {
	case StateCompleted:
		if inMemory {
			return result, nil
		}
		// Completed in a previous process; the blob lives in the ledger.
		if m.store != nil {
			return m.store.LoadResult(id)
		}
		return nil, fmt.Errorf("%w: result for job %s", domain.ErrNotFound, id)
	case StateFailed:
		return nil, fmt.Errorf("%w: %s", ErrFailed, failure)
	case StateCancelled:
		return nil, fmt.Errorf("%w: job %s", domain.ErrCancelled, id)
	default:
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrNotReady, id, state)
	}
}

// Cancel requests cancellation. PENDING jobs go terminal immediately;
// RUNNING jobs are signalled and transition when the runner observes the
// context at its next checkpoint. Terminal and unknown jobs return false.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}

	switch job.State {
	case StatePending:
		now := time.Now().UTC()
		job.State = StateCancelled
		job.Message = "cancelled before start"
		job.CompletedAt = &now
		snapshot := job.snapshot()
		watchers := m.detachWatchersLocked(id)
		m.mu.Unlock()

		m.persist(snapshot)
		m.emitLifecycle(snapshot, "cancelled")
		closeWatchers(watchers, terminalUpdate(snapshot))
		m.log.Info().Str("job_id", id).Msg("Job cancelled before start")
		return true

	case StateRunning:
		cancel := m.cancels[id]
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return true

	default:
		m.mu.Unlock()
		return false
	}
}

// List returns job snapshots newest-first, optionally filtered by state.
// limit is clamped to maxListLimit; non-positive means the maximum.
func (m *Manager) List(state JobState, limit int) []*Job {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Job, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		job, ok := m.jobs[m.order[i]]
		if !ok {
			continue
		}
		if state != "" && job.State != state {
			continue
		}
		out = append(out, job.snapshot())
	}
	return out
}

// Counts returns the number of registered jobs per state.
func (m *Manager) Counts() map[JobState]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[JobState]int, len(AllStates))
	for _, job := range m.jobs {
		counts[job.State]++
	}
	return counts
}

// QueueDepth returns how many submitted jobs are waiting for a worker.
func (m *Manager) QueueDepth() int {
	return len(m.queue)
}

// SubscribeProgress registers a per-job update channel. The channel is
// closed after the terminal update; the returned function unsubscribes
// early and may be called more than once.
func (m *Manager) SubscribeProgress(id string) (<-chan ProgressUpdate, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return nil, nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}

	ch := make(chan ProgressUpdate, watcherBuffer)
	sub := m.nextSub
	m.nextSub++
	if m.watchers[id] == nil {
		m.watchers[id] = make(map[uint64]chan ProgressUpdate)
	}
	m.watchers[id][sub] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if subs, ok := m.watchers[id]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(m.watchers, id)
				}
			}
		})
	}
	return ch, unsubscribe, nil
}

// Hydrate seeds the registry from the ledger. RUNNING and PENDING rows
// left behind by a previous process can never resume (their payloads died
// with it), so they are recorded as FAILED "interrupted" first.
func (m *Manager) Hydrate() error {
	if m.store == nil {
		return nil
	}

	interrupted, err := m.store.MarkInterrupted(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark interrupted jobs: %w", err)
	}
	if interrupted > 0 {
		m.log.Warn().Int("jobs", interrupted).Msg("Marked orphaned jobs from previous process as failed")
	}

	hydrated, err := m.store.LoadJobs()
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range hydrated {
		if _, exists := m.jobs[job.ID]; exists {
			continue
		}
		m.jobs[job.ID] = job
		m.order = append(m.order, job.ID)
	}
	m.log.Info().Int("jobs", len(hydrated)).Msg("Job registry hydrated")
	return nil
}

// Prune removes terminal jobs older than maxAge from the registry and the
// ledger, returning how many were dropped from memory.
func (m *Manager) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	removed := 0
	kept := m.order[:0]
	for _, id := range m.order {
		job, ok := m.jobs[id]
		if !ok {
			continue
		}
		if job.State.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			delete(m.results, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	m.mu.Unlock()

	if m.store != nil {
		if _, err := m.store.DeleteTerminalBefore(cutoff); err != nil {
			return removed, fmt.Errorf("prune job ledger: %w", err)
		}
	}
	return removed, nil
}

// claim transitions a popped PENDING job to RUNNING and hands back what
// the worker needs. Jobs cancelled while queued come back nil.
func (m *Manager) claim(id string) (*Job, Runner, *ProgressReporter) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.State != StatePending {
		m.mu.Unlock()
		return nil, nil, nil
	}
	runner := m.runners[job.Kind]
	if runner == nil {
		m.mu.Unlock()
		return nil, nil, nil
	}

	now := time.Now().UTC()
	job.State = StateRunning
	job.StartedAt = &now
	snapshot := job.snapshot()
	m.mu.Unlock()

	m.persist(snapshot)
	m.emitLifecycle(snapshot, "started")
	return job, runner, newProgressReporter(m, job.ID, job.Kind)
}

// retainCancel stores the cancel func for a running job so Cancel can
// reach it.
func (m *Manager) retainCancel(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[id] = cancel
}

// finish applies the runner outcome. Errors are classified into the
// terminal states; a job that somehow went terminal already is left
// untouched.
func (m *Manager) finish(id string, result any, runErr error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.State.Terminal() {
		m.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	job.CompletedAt = &now
	delete(m.cancels, id)

	var status string
	switch {
	case runErr == nil:
		job.State = StateCompleted
		job.Progress = 100
		job.Message = "completed"
		m.results[id] = result
		status = "completed"
	case errors.Is(runErr, domain.ErrCancelled), errors.Is(runErr, context.Canceled):
		job.State = StateCancelled
		job.Message = "cancelled"
		status = "cancelled"
	default:
		job.State = StateFailed
		job.Error = runErr.Error()
		job.Message = "failed"
		status = "failed"
	}

	snapshot := job.snapshot()
	watchers := m.detachWatchersLocked(id)
	m.mu.Unlock()

	m.persist(snapshot)
	if snapshot.State == StateCompleted && m.store != nil {
		if err := m.store.SaveResult(id, result); err != nil {
			m.log.Error().Err(err).Str("job_id", id).Msg("Failed to persist job result")
		}
	}
	m.emitLifecycle(snapshot, status)
	closeWatchers(watchers, terminalUpdate(snapshot))

	logEvent := m.log.Info()
	if snapshot.State == StateFailed {
		logEvent = m.log.Error().Str("error", snapshot.Error)
	}
	logEvent.Str("job_id", id).Str("state", string(snapshot.State)).Msg("Job finished")
}

// keepPercent tells updateProgress to leave the stored percentage alone
// (indeterminate message-only updates).
const keepPercent = -1.0

// updateProgress records a progress sample on a live job and fans it out
// to subscribers. Updates on terminal jobs are dropped.
func (m *Manager) updateProgress(id string, percent float64, current, total int, message string) bool {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.State.Terminal() {
		m.mu.Unlock()
		return false
	}
	if percent >= 0 {
		job.Progress = percent
	} else {
		percent = job.Progress
	}
	if message != "" {
		job.Message = message
	}
	state := job.State

	subs := make([]chan ProgressUpdate, 0, len(m.watchers[id]))
	for _, ch := range m.watchers[id] {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	update := ProgressUpdate{
		JobID:    id,
		State:    state,
		Progress: percent,
		Current:  current,
		Total:    total,
		Message:  message,
	}
	for _, ch := range subs {
		select {
		case ch <- update:
		default:
			// Slow subscriber; it will catch up on the next sample.
		}
	}
	return true
}

// detachWatchersLocked removes and returns every subscriber channel for a
// job. Caller must hold the lock.
func (m *Manager) detachWatchersLocked(id string) []chan ProgressUpdate {
	subs := make([]chan ProgressUpdate, 0, len(m.watchers[id]))
	for _, ch := range m.watchers[id] {
		subs = append(subs, ch)
	}
	delete(m.watchers, id)
	return subs
}

// closeWatchers pushes the terminal update to each subscriber and closes
// the channels. The terminal frame is best-effort; a closed channel alone
// also signals completion.
func closeWatchers(subs []chan ProgressUpdate, update ProgressUpdate) {
	for _, ch := range subs {
		select {
		case ch <- update:
		default:
		}
		close(ch)
	}
}

// terminalUpdate builds the final progress frame for a terminal snapshot.
func terminalUpdate(job *Job) ProgressUpdate {
	return ProgressUpdate{
		JobID:    job.ID,
		State:    job.State,
		Progress: job.Progress,
		Message:  job.Message,
		Error:    job.Error,
	}
}

// persist writes the job row to the ledger. Persistence failures are
// logged, not propagated; the in-memory registry stays authoritative.
func (m *Manager) persist(job *Job) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveJob(job); err != nil {
		m.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist job")
	}
}

// emitLifecycle publishes a typed lifecycle event for the snapshot.
func (m *Manager) emitLifecycle(job *Job, status string) {
	if m.events == nil {
		return
	}
	data := &events.JobStatusData{
		JobID:       job.ID,
		JobKind:     string(job.Kind),
		Status:      status,
		Description: job.Description,
		Error:       job.Error,
		Timestamp:   time.Now().UTC(),
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		data.Duration = job.CompletedAt.Sub(*job.StartedAt).Seconds()
	}
	m.events.EmitTyped(data.EventType(), "jobs", data)
}
