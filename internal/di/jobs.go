package di

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/config"
	"github.com/quantleap/quantd/internal/jobs"
	"github.com/quantleap/quantd/internal/scheduler"
)

// InitializeJobs builds the durable job manager, binds a runner to every
// job kind, sizes the worker pool and prepares the maintenance jobs the
// scheduler will run.
func InitializeJobs(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.JobStore = jobs.NewStore(container.JobsDB)
	container.JobManager = jobs.NewManager(container.JobStore, container.EventManager, log)

	container.JobManager.RegisterRunner(jobs.KindBacktest, jobs.NewBacktestRunner(container.BacktestService))
	container.JobManager.RegisterRunner(jobs.KindCompare, jobs.NewCompareRunner(container.BacktestService))
	container.JobManager.RegisterRunner(jobs.KindMonteCarlo, jobs.NewMonteCarloRunner())
	container.JobManager.RegisterRunner(jobs.KindStressTest, jobs.NewStressRunner())

	container.WorkerPool = jobs.NewPool(container.JobManager, cfg.Workers, cfg.JobTimeout, log)
	container.JobsHandler = jobs.NewHandler(container.JobManager, log)

	retention := time.Duration(cfg.JobRetentionDays) * 24 * time.Hour
	container.RetentionJob = scheduler.NewRetentionJob(container.JobManager, retention, container.EventManager, log)
	container.CheckpointJob = scheduler.NewCheckpointJob(container.Databases(), container.EventManager, log)
	container.CacheSweepJob = scheduler.NewCacheSweepJob(container.IndicatorCache, container.EventManager, log)

	log.Info().
		Int("workers", cfg.Workers).
		Dur("job_timeout", cfg.JobTimeout).
		Int("retention_days", cfg.JobRetentionDays).
		Msg("Job orchestration initialized")
}
