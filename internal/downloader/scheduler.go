// Package downloader runs download tasks: it polls the job queue, admits
// jobs under a concurrency limit, drives each task through its states and
// reclaims expired artifacts.
package downloader

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/cesargomez89/spotdown/internal/domain"
	"github.com/cesargomez89/spotdown/internal/logger"
)

// RunFunc processes one admitted job.
type RunFunc func(ctx context.Context, job *domain.Job)

// Scheduler admits at most limit concurrent jobs and never runs the same
// job id twice at once. A submitted job waits for a free slot in its own
// goroutine, so Submit itself never blocks.
type Scheduler struct {
	run      RunFunc
	slots    *semaphore.Weighted
	inFlight map[string]struct{}
	logger   *logger.Logger
	wg       sync.WaitGroup
	mu       sync.Mutex
}

func NewScheduler(limit int, run RunFunc, log *logger.Logger) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		run:      run,
		slots:    semaphore.NewWeighted(int64(limit)),
		inFlight: make(map[string]struct{}),
		logger:   log.WithComponent("scheduler"),
	}
}

// Submit reports whether the job was admitted. It returns false when the
// job id is already in flight.
func (s *Scheduler) Submit(ctx context.Context, job *domain.Job) bool {
	s.mu.Lock()
	if _, ok := s.inFlight[job.ID]; ok {
		s.mu.Unlock()
		return false
	}
	s.inFlight[job.ID] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.release(job.ID)

		if err := s.slots.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.slots.Release(1)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Panic in job", "job_id", job.ID, "panic", r)
			}
		}()

		s.run(ctx, job)
	}()
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// InFlight counts admitted jobs, running or waiting for a slot.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

func (s *Scheduler) IsInFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[id]
	return ok
}

// Wait blocks until every admitted job has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
