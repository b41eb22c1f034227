package jobs

import (
	"bytes"
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantleap/quantd/internal/database"
	"github.com/quantleap/quantd/internal/domain"
)

// Store persists job rows and result payloads in jobs.db (ledger profile).
// Timestamps are stored as Unix seconds UTC; results as msgpack blobs.
type Store struct {
	db *database.DB
}

// NewStore creates a job store over an opened jobs database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// SaveJob upserts the job row.
func (s *Store) SaveJob(job *Job) error {
	var startedAt, completedAt interface{}
	if job.StartedAt != nil {
		startedAt = job.StartedAt.Unix()
	}
	if job.CompletedAt != nil {
		completedAt = job.CompletedAt.Unix()
	}
	var errText interface{}
	if job.Error != "" {
		errText = job.Error
	}

	_, err := s.db.Exec(`
		INSERT INTO jobs (id, kind, state, progress, message, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			progress = excluded.progress,
			message = excluded.message,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		job.ID, string(job.Kind), string(job.State), job.Progress, job.Message,
		errText, job.CreatedAt.Unix(), startedAt, completedAt)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// SaveResult stores the msgpack-encoded result payload for a job. Structs
// are encoded under their json field names so a result loaded after a
// restart serializes identically to a live one.
func (s *Store) SaveResult(id string, result any) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result for job %s: %w", id, err)
	}
	payload := buf.Bytes()
	_, err := s.db.Exec(`
		INSERT INTO job_results (job_id, payload, stored_at)
		VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			payload = excluded.payload,
			stored_at = excluded.stored_at`,
		id, payload, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("save result for job %s: %w", id, err)
	}
	return nil
}

// LoadResult decodes the stored result payload for a job. Decoded maps
// come back as map[string]interface{}, ready for JSON re-encoding.
func (s *Store) LoadResult(id string) (any, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM job_results WHERE job_id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: result for job %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load result for job %s: %w", id, err)
	}

	var result any
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode result for job %s: %w", id, err)
	}
	return result, nil
}

// LoadJobs returns every job row ordered oldest-first, matching the
// registry's submission order.
func (s *Store) LoadJobs() ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, state, progress, message, error, created_at, started_at, completed_at
		FROM jobs ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var (
			job         Job
			kind, state string
			errText     sql.NullString
			createdAt   int64
			startedAt   sql.NullInt64
			completedAt sql.NullInt64
		)
		if err := rows.Scan(&job.ID, &kind, &state, &job.Progress, &job.Message,
			&errText, &createdAt, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		job.Kind = JobKind(kind)
		job.State = JobState(state)
		job.Description = KindDescription(job.Kind)
		job.Error = errText.String
		job.CreatedAt = time.Unix(createdAt, 0).UTC()
		if startedAt.Valid {
			t := time.Unix(startedAt.Int64, 0).UTC()
			job.StartedAt = &t
		}
		if completedAt.Valid {
			t := time.Unix(completedAt.Int64, 0).UTC()
			job.CompletedAt = &t
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// MarkInterrupted flips RUNNING and PENDING rows to FAILED "interrupted".
// Called once at boot: such rows belong to a process that died with the
// work, and their payloads are gone.
func (s *Store) MarkInterrupted(now time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE jobs
		SET state = ?, error = 'interrupted', message = 'interrupted', completed_at = ?
		WHERE state IN (?, ?)`,
		string(StateFailed), now.Unix(), string(StateRunning), string(StatePending))
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteTerminalBefore removes terminal jobs completed before the cutoff.
// Result blobs go with them via the foreign key cascade.
func (s *Store) DeleteTerminalBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`
		DELETE FROM jobs
		WHERE state IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(StateCompleted), string(StateFailed), string(StateCancelled), cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
