package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
)

// Pool runs queued jobs on a fixed set of workers. Each job executes on
// exactly one worker under its own context; Stop cancels the base context
// so in-flight runners wind down cooperatively before Stop returns.
type Pool struct {
	manager *Manager
	workers int
	timeout time.Duration // per-job deadline, 0 means none

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    zerolog.Logger
}

// NewPool creates a worker pool over the manager's queue.
func NewPool(manager *Manager, workers int, timeout time.Duration, log zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		manager: manager,
		workers: workers,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     log.With().Str("component", "job_pool").Logger(),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.log.Info().Int("workers", p.workers).Dur("job_timeout", p.timeout).Msg("Starting job workers")

	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer wg.Done()
			p.worker()
		}()
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()
}

// Stop cancels every running job and blocks until all workers exit.
func (p *Pool) Stop() {
	p.cancel()
	<-p.done
	p.log.Info().Msg("Job workers stopped")
}

// worker pops job ids until the pool shuts down.
func (p *Pool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case id := <-p.manager.queue:
			p.runJob(id)
		}
	}
}

// runJob claims, executes and finishes one job.
func (p *Pool) runJob(id string) {
	job, runner, reporter := p.manager.claim(id)
	if job == nil {
		// Cancelled while queued, or the registry moved on.
		return
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
	} else {
		ctx, cancel = context.WithCancel(p.ctx)
	}
	p.manager.retainCancel(id, cancel)
	defer cancel()

	result, err := runner.Run(ctx, job, reporter)

	// A runner that bailed because its context died gets classified by
	// what killed the context, not by how the error surfaced.
	if err != nil && ctx.Err() != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			err = fmt.Errorf("%w: job ran past its %s deadline", domain.ErrDeadline, p.timeout)
		case errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled):
			// Already the right kind.
		default:
			err = fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
	}

	p.manager.finish(id, result, err)
}
