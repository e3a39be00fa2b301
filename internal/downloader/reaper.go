package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cesargomez89/spotdown/internal/blob"
	"github.com/cesargomez89/spotdown/internal/domain"
	"github.com/cesargomez89/spotdown/internal/logger"
	"github.com/cesargomez89/spotdown/internal/realtime"
	"github.com/cesargomez89/spotdown/internal/store"
)

type ReaperConfig struct {
	Store     *store.DB
	Blobs     blob.Store
	Publisher realtime.Publisher
	Logger    *logger.Logger

	// Threshold is how long a terminal task keeps its artifacts before a
	// sweep reclaims them.
	Threshold    time.Duration
	Interval     time.Duration
	ReclaimDelay time.Duration
}

// Reaper deletes the bundle and track objects of finished tasks and marks
// them expired. Sweeps are the backstop; per-task timers armed by
// ScheduleReclaim only exist in memory and are lost on restart.
type Reaper struct {
	store        *store.DB
	blobs        blob.Store
	publisher    realtime.Publisher
	logger       *logger.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	timers       map[string]*time.Timer
	threshold    time.Duration
	interval     time.Duration
	reclaimDelay time.Duration
	wg           sync.WaitGroup
	mu           sync.Mutex
}

func NewReaper(cfg ReaperConfig) *Reaper {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		store:        cfg.Store,
		blobs:        cfg.Blobs,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger.WithComponent("reaper"),
		ctx:          ctx,
		cancel:       cancel,
		timers:       make(map[string]*time.Timer),
		threshold:    cfg.Threshold,
		interval:     cfg.Interval,
		reclaimDelay: cfg.ReclaimDelay,
	}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("Sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires every completed or failed task last updated before the
// threshold and returns how many were expired.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "reaper.sweep")
	defer span.End()

	tasks, err := r.store.ListExpirable(ctx, time.Now().Add(-r.threshold))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to list expirable tasks: %w", err)
	}

	expired := 0
	var errs []error
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if err := r.expire(ctx, t); err != nil {
			r.logger.WithTask(t.ID).Error("Failed to expire task", "error", err)
			errs = append(errs, err)
			continue
		}
		expired++
	}
	span.SetAttributes(attribute.Int("reaper.expired", expired))

	if n, err := r.store.PurgeExpiredCache(ctx); err != nil {
		r.logger.Warn("Failed to purge cache", "error", err)
	} else if n > 0 {
		r.logger.Debug("Purged cache entries", "count", n)
	}

	if expired > 0 {
		r.logger.Info("Sweep finished", "expired", expired, "failed", len(errs))
	}
	return expired, errors.Join(errs...)
}

// ScheduleReclaim arms a one-shot timer that reclaims the task after the
// reclaim delay. Scheduling the same task again restarts its timer.
func (r *Reaper) ScheduleReclaim(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return
	}
	if t, ok := r.timers[taskID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(r.reclaimDelay, func() {
		r.mu.Lock()
		if r.ctx.Err() != nil {
			r.mu.Unlock()
			return
		}
		if r.timers[taskID] == timer {
			delete(r.timers, taskID)
		}
		r.wg.Add(1)
		r.mu.Unlock()
		defer r.wg.Done()

		if err := r.Reclaim(r.ctx, taskID); err != nil && r.ctx.Err() == nil {
			r.logger.WithTask(taskID).Error("Deferred reclaim failed", "error", err)
		}
	})
	r.timers[taskID] = timer
}

// Pending counts armed reclaim timers.
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Reclaim expires one task now if it is completed or failed.
func (r *Reaper) Reclaim(ctx context.Context, taskID string) error {
	task, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil || !task.Status.CanTransition(domain.TaskStatusExpired) {
		return nil
	}
	return r.expire(ctx, task)
}

func (r *Reaper) expire(ctx context.Context, task *domain.Task) error {
	if err := r.blobs.Delete(ctx, blob.ArchiveKey(task.ID)); err != nil {
		return fmt.Errorf("failed to delete bundle: %w", err)
	}
	n, err := blob.DeletePrefix(ctx, r.blobs, blob.TrackPrefix(task.ID))
	if err != nil {
		return fmt.Errorf("failed to delete tracks: %w", err)
	}

	updated, err := r.store.TransitionTask(ctx, task.ID, task.Status, domain.TaskStatusExpired, store.TaskUpdate{})
	if errors.Is(err, store.ErrStaleStatus) {
		return nil
	}
	if err != nil {
		return err
	}

	r.logger.WithTask(task.ID).Info("Task expired", "track_objects", n)
	if r.publisher != nil {
		r.publisher.Publish(realtime.TaskTopic(updated.ID), realtime.NewTaskEvent(updated))
	}
	return nil
}

// Stop cancels armed timers and waits for running reclaims.
func (r *Reaper) Stop() {
	r.mu.Lock()
	r.cancel()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
