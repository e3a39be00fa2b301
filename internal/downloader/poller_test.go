package downloader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cesargomez89/spotdown/internal/domain"
	"github.com/cesargomez89/spotdown/internal/logger"
)

type stubLister struct {
	jobs        []*domain.Job
	err         error
	stuckBefore time.Time
}

func (s *stubLister) ListDequeueableJobs(ctx context.Context, stuckBefore time.Time) ([]*domain.Job, error) {
	s.stuckBefore = stuckBefore
	return s.jobs, s.err
}

func TestPollerAdmitsEachJobOnce(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	runs := map[string]int{}
	s := NewScheduler(5, func(ctx context.Context, job *domain.Job) {
		mu.Lock()
		runs[job.ID]++
		mu.Unlock()
		<-release
	}, logger.Discard())

	lister := &stubLister{jobs: []*domain.Job{
		{ID: "a", Status: domain.JobStatusPending},
		{ID: "b", Status: domain.JobStatusProcessing},
	}}
	p := NewPoller(lister, s, time.Second, 30*time.Minute, logger.Discard())

	if got := p.Poll(context.Background()); got != 2 {
		t.Errorf("Expected 2 admitted, got %d", got)
	}
	if got := p.Poll(context.Background()); got != 0 {
		t.Errorf("Expected in-flight jobs to be skipped, got %d", got)
	}

	if d := time.Since(lister.stuckBefore); d < 29*time.Minute || d > 31*time.Minute {
		t.Errorf("Expected stuck cutoff about 30m ago, got %s", d)
	}

	close(release)
	s.Wait()
	mu.Lock()
	defer mu.Unlock()
	if runs["a"] != 1 || runs["b"] != 1 {
		t.Errorf("Expected each job to run once, got %v", runs)
	}
}

func TestPollerListError(t *testing.T) {
	s := NewScheduler(1, func(ctx context.Context, job *domain.Job) {}, logger.Discard())
	p := NewPoller(&stubLister{err: errors.New("db locked")}, s, time.Second, time.Minute, logger.Discard())

	if got := p.Poll(context.Background()); got != 0 {
		t.Errorf("Expected 0 admitted on error, got %d", got)
	}
}

func TestPollerReadmitsStuckJob(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	job := enqueue(t, db, "task-1", "pl1")
	if err := db.ClaimJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	admitted := make(chan string, 4)
	s := NewScheduler(1, func(ctx context.Context, job *domain.Job) {
		admitted <- job.ID
	}, logger.Discard())

	fresh := NewPoller(db, s, time.Second, time.Hour, logger.Discard())
	if got := fresh.Poll(ctx); got != 0 {
		t.Errorf("Expected a freshly claimed job to be left alone, got %d", got)
	}

	stuck := NewPoller(db, s, time.Second, -time.Minute, logger.Discard())
	if got := stuck.Poll(ctx); got != 1 {
		t.Errorf("Expected the stuck job to be re-admitted, got %d", got)
	}
	s.Wait()
	if id := <-admitted; id != job.ID {
		t.Errorf("Expected %s, got %s", job.ID, id)
	}
}
