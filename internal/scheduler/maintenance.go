package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/database"
	"github.com/quantleap/quantd/internal/events"
	"github.com/quantleap/quantd/internal/jobs"
	"github.com/quantleap/quantd/internal/modules/indicators"
)

// RetentionJob prunes terminal jobs older than the retention window from
// the in-memory registry and the ledger, result blobs included.
type RetentionJob struct {
	manager *jobs.Manager
	maxAge  time.Duration
	events  *events.Manager
	log     zerolog.Logger
}

// NewRetentionJob creates a retention job. maxAge is how long terminal
// jobs stay queryable after completion.
func NewRetentionJob(manager *jobs.Manager, maxAge time.Duration, em *events.Manager, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		manager: manager,
		maxAge:  maxAge,
		events:  em,
		log:     log.With().Str("job", "job_retention").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *RetentionJob) Name() string { return "job_retention" }

// Run removes expired terminal jobs and their results.
func (j *RetentionJob) Run() error {
	start := time.Now()
	removed, err := j.manager.Prune(j.maxAge)
	if err != nil {
		return err
	}

	if j.events != nil {
		j.events.EmitTyped(events.MaintenanceCompleted, "scheduler", &events.MaintenanceCompletedData{
			Task:     j.Name(),
			Duration: time.Since(start).Seconds(),
			Removed:  removed,
		})
	}
	j.log.Info().
		Int("removed", removed).
		Dur("max_age", j.maxAge).
		Msg("Job retention sweep completed")
	return nil
}

// CheckpointJob forces WAL checkpoints across the databases so the WAL
// files cannot grow without bound between restarts.
type CheckpointJob struct {
	databases map[string]*database.DB
	events    *events.Manager
	log       zerolog.Logger
}

// NewCheckpointJob creates a checkpoint job over the named databases.
func NewCheckpointJob(databases map[string]*database.DB, em *events.Manager, log zerolog.Logger) *CheckpointJob {
	return &CheckpointJob{
		databases: databases,
		events:    em,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *CheckpointJob) Name() string { return "wal_checkpoint" }

// Run checkpoints every database. A failing database is logged and the
// rest are still checkpointed; only a connectivity failure is returned.
func (j *CheckpointJob) Run() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for name, db := range j.databases {
		if err := db.QuickCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Database unreachable")
			return err
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	if j.events != nil {
		j.events.EmitTyped(events.MaintenanceCompleted, "scheduler", &events.MaintenanceCompletedData{
			Task:     j.Name(),
			Duration: time.Since(start).Seconds(),
		})
	}
	j.log.Debug().Int("databases", len(j.databases)).Msg("WAL checkpoint completed")
	return nil
}

// CacheSweepJob evicts expired indicator cache rows.
type CacheSweepJob struct {
	cache  *indicators.Cache
	events *events.Manager
	log    zerolog.Logger
}

// NewCacheSweepJob creates a cache sweep job.
func NewCacheSweepJob(cache *indicators.Cache, em *events.Manager, log zerolog.Logger) *CacheSweepJob {
	return &CacheSweepJob{
		cache:  cache,
		events: em,
		log:    log.With().Str("job", "cache_sweep").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *CacheSweepJob) Name() string { return "cache_sweep" }

// Run deletes cache entries past their expiry.
func (j *CacheSweepJob) Run() error {
	removed, err := j.cache.Sweep()
	if err != nil {
		return err
	}

	if j.events != nil {
		j.events.EmitTyped(events.CacheSwept, "scheduler", &events.CacheSweptData{
			Entries: int(removed),
		})
	}
	j.log.Info().Int64("removed", removed).Msg("Indicator cache swept")
	return nil
}
