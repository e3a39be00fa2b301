package downloader

import (
	"context"
	"time"

	"github.com/cesargomez89/spotdown/internal/domain"
	"github.com/cesargomez89/spotdown/internal/logger"
)

// JobLister is the queue read the poller needs.
type JobLister interface {
	ListDequeueableJobs(ctx context.Context, stuckBefore time.Time) ([]*domain.Job, error)
}

// Poller lists pending and stuck jobs on a fixed interval and hands them to
// the scheduler. It never writes job rows.
type Poller struct {
	jobs         JobLister
	scheduler    *Scheduler
	logger       *logger.Logger
	interval     time.Duration
	stuckTimeout time.Duration
}

func NewPoller(jobs JobLister, scheduler *Scheduler, interval, stuckTimeout time.Duration, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.Default()
	}
	return &Poller{
		jobs:         jobs,
		scheduler:    scheduler,
		interval:     interval,
		stuckTimeout: stuckTimeout,
		logger:       log.WithComponent("poller"),
	}
}

// Poll runs one listing pass and returns how many jobs were admitted.
func (p *Poller) Poll(ctx context.Context) int {
	jobs, err := p.jobs.ListDequeueableJobs(ctx, time.Now().Add(-p.stuckTimeout))
	if err != nil {
		p.logger.Error("Failed to list jobs", "error", err)
		return 0
	}

	admitted := 0
	for _, j := range jobs {
		if !p.scheduler.Submit(ctx, j) {
			continue
		}
		if j.Status == domain.JobStatusProcessing {
			p.logger.Warn("Re-admitting stuck job", "job_id", j.ID, "task_id", j.Payload.TaskID)
		}
		admitted++
	}
	return admitted
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}
