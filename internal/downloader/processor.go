package downloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cesargomez89/spotdown/internal/acquire"
	"github.com/cesargomez89/spotdown/internal/archive"
	"github.com/cesargomez89/spotdown/internal/catalog"
	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/domain"
	"github.com/cesargomez89/spotdown/internal/logger"
	"github.com/cesargomez89/spotdown/internal/realtime"
	"github.com/cesargomez89/spotdown/internal/storage"
	"github.com/cesargomez89/spotdown/internal/store"
)

var tracer = otel.Tracer("github.com/cesargomez89/spotdown/internal/downloader")

const releaseTimeout = 5 * time.Second

// TrackAcquirer resolves one track to an uploaded artifact.
type TrackAcquirer interface {
	Acquire(ctx context.Context, taskID string, track *domain.Track) (*acquire.Result, error)
}

// Archiver builds and uploads the bundle for a task.
type Archiver interface {
	Build(ctx context.Context, taskID string, entries []archive.Entry) (string, error)
}

// Reclaimer schedules early artifact removal for a completed task.
type Reclaimer interface {
	ScheduleReclaim(taskID string)
}

type ProcessorConfig struct {
	Store      *store.DB
	Catalog    catalog.PlaylistProvider
	Acquirer   TrackAcquirer
	Archiver   Archiver
	Reclaimer  Reclaimer
	Publisher  realtime.Publisher
	Logger     *logger.Logger
	ScratchDir string
	// TrackSlots is shared by every task the processor runs.
	TrackSlots int
}

// Processor drives one task per job through
// pending, fetching_metadata, downloading, zipping and a terminal status.
type Processor struct {
	store      *store.DB
	catalog    catalog.PlaylistProvider
	acquirer   TrackAcquirer
	archiver   Archiver
	reclaimer  Reclaimer
	publisher  realtime.Publisher
	trackSlots *semaphore.Weighted
	logger     *logger.Logger
	scratchDir string
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.TrackSlots < 1 {
		cfg.TrackSlots = constants.DefaultTrackConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Processor{
		store:      cfg.Store,
		catalog:    cfg.Catalog,
		acquirer:   cfg.Acquirer,
		archiver:   cfg.Archiver,
		reclaimer:  cfg.Reclaimer,
		publisher:  cfg.Publisher,
		trackSlots: semaphore.NewWeighted(int64(cfg.TrackSlots)),
		logger:     cfg.Logger.WithComponent("processor"),
		scratchDir: cfg.ScratchDir,
	}
}

// taskRun tracks the latest persisted state of the task being processed.
type taskRun struct {
	task *domain.Task
	log  *logger.Logger
	// retry is set when the task could not be loaded or reset.
	retry bool
}

// Process claims the job and runs its task to a terminal status. Every exit
// removes the task scratch and deletes the job. The job is released for the
// next run instead when ctx is cancelled or the task was left unsettled.
func (p *Processor) Process(ctx context.Context, job *domain.Job) {
	taskID := job.Payload.TaskID
	log := p.logger.WithTask(taskID)

	if err := p.store.ClaimJob(ctx, job.ID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("Failed to claim job", "job_id", job.ID, "error", err)
		}
		return
	}

	ctx, span := tracer.Start(ctx, "task.process")
	span.SetAttributes(attribute.String("task.id", taskID), attribute.String("job.id", job.ID))
	defer span.End()

	run := &taskRun{log: log}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in task", "panic", r)
			span.SetStatus(codes.Error, "panic")
			p.fail(context.WithoutCancel(ctx), run, fmt.Sprintf("Internal error: %v", r))
		}
		p.finish(ctx, job, run)
	}()

	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		log.Error("Failed to load task", "error", err)
		run.retry = true
		return
	}
	if task == nil {
		log.Warn("Job references a missing task", "job_id", job.ID)
		return
	}
	if task.Status.IsTerminal() {
		log.Info("Task already finished, dropping job", "status", task.Status)
		return
	}
	if task.Status != domain.TaskStatusPending {
		log.Warn("Restarting interrupted task", "status", task.Status)
		if err := p.store.ResetTaskForRetry(ctx, taskID); err != nil {
			log.Error("Failed to reset task", "error", err)
			run.retry = true
			return
		}
		task.Status = domain.TaskStatusPending
	}
	run.task = task

	if err := p.run(ctx, run); err != nil {
		if ctx.Err() != nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Task failed", "status", run.task.Status, "error", err)
		p.fail(ctx, run, fmt.Sprintf("Internal error: %v", err))
	}
}

func (p *Processor) finish(ctx context.Context, job *domain.Job, run *taskRun) {
	if err := storage.RemoveTaskScratch(p.scratchDir, job.Payload.TaskID); err != nil {
		run.log.Warn("Failed to remove scratch files", "error", err)
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	unsettled := run.task != nil && !run.task.Status.IsTerminal()
	if ctx.Err() != nil || run.retry || unsettled {
		if ctx.Err() != nil {
			run.log.Info("Shutting down, releasing job", "job_id", job.ID)
		} else {
			run.log.Warn("Releasing job for retry", "job_id", job.ID)
		}
		if err := p.store.ReleaseJob(bg, job.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			run.log.Error("Failed to release job", "job_id", job.ID, "error", err)
		}
		return
	}
	if err := p.store.DeleteJob(bg, job.ID); err != nil {
		run.log.Error("Failed to delete job", "job_id", job.ID, "error", err)
	}
}

func (p *Processor) run(ctx context.Context, run *taskRun) error {
	if err := p.transition(ctx, run, domain.TaskStatusFetchingMetadata, store.TaskUpdate{}); err != nil {
		return err
	}

	infos, err := p.fetchPlaylist(ctx, run.task.PlaylistRef)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		run.log.Warn("Failed to fetch playlist", "error", err)
		return p.fail(ctx, run, fmt.Sprintf("%s: %v", constants.MsgPlaylistFailed, err))
	}
	if len(infos) == 0 {
		return p.fail(ctx, run, constants.MsgEmptyPlaylist)
	}

	tracks, err := p.store.UpsertTracks(ctx, run.task.ID, newTracks(infos))
	if err != nil {
		return fmt.Errorf("failed to create tracks: %w", err)
	}
	total := len(tracks)
	if err := p.transition(ctx, run, domain.TaskStatusDownloading, store.TaskUpdate{TotalTracks: &total}); err != nil {
		return err
	}
	run.log.Info("Downloading tracks", "total", total)

	if err := p.downloadAll(ctx, run, tracks); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	task, err := p.store.GetTask(ctx, run.task.ID)
	if err != nil {
		return fmt.Errorf("failed to reload task: %w", err)
	}
	if task == nil {
		return fmt.Errorf("task %s: %w", run.task.ID, store.ErrNotFound)
	}
	run.task = task

	if task.TracksDownloaded == 0 {
		return p.fail(ctx, run, constants.MsgNoTracksDownloaded)
	}
	return p.bundle(ctx, run)
}

func (p *Processor) fetchPlaylist(ctx context.Context, ref string) ([]catalog.TrackInfo, error) {
	id, err := catalog.ParsePlaylistID(ref)
	if err != nil {
		return nil, err
	}
	return p.catalog.FetchPlaylist(ctx, id)
}

func newTracks(infos []catalog.TrackInfo) []*domain.Track {
	tracks := make([]*domain.Track, 0, len(infos))
	for i, info := range infos {
		tracks = append(tracks, &domain.Track{
			TrackNumber: i + 1,
			SourceID:    info.SourceID,
			Title:       info.Title,
			Artist:      info.Artist,
			DurationMs:  info.DurationMs,
			CoverURL:    info.CoverURL,
		})
	}
	return tracks
}

// downloadAll fans the tracks out under the shared track slots and returns
// once every started track has resolved. The error is the first track that
// could not be recorded.
func (p *Processor) downloadAll(ctx context.Context, run *taskRun, tracks []*domain.Track) error {
	var g errgroup.Group
	for _, t := range tracks {
		if err := p.trackSlots.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer p.trackSlots.Release(1)
			return p.downloadTrack(ctx, run, t)
		})
	}
	return g.Wait()
}

func (p *Processor) downloadTrack(ctx context.Context, run *taskRun, t *domain.Track) (err error) {
	log := run.log.WithTrack(t.TrackNumber, t.Title)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in track", "panic", r)
			if t.Status == domain.TrackStatusDownloading {
				result := store.TrackResult{Status: domain.TrackStatusFailed, ErrorMessage: fmt.Sprintf("Internal error: %v", r)}
				snapshot, rerr := p.store.ResolveTrack(ctx, t, result)
				if rerr != nil {
					err = fmt.Errorf("track %d: failed to record panic: %w", t.TrackNumber, rerr)
					return
				}
				p.publishTrack(t)
				p.publishTask(snapshot)
			}
		}
	}()

	if err := p.store.MarkTrackDownloading(ctx, t.ID); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Error("Failed to mark track downloading", "error", err)
		return fmt.Errorf("track %d: failed to mark downloading: %w", t.TrackNumber, err)
	}
	t.Status = domain.TrackStatusDownloading
	p.publishTrack(t)

	result := store.TrackResult{Status: domain.TrackStatusCompleted}
	res, err := p.acquirer.Acquire(ctx, run.task.ID, t)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("Track failed", "error", err)
		result = store.TrackResult{Status: domain.TrackStatusFailed, ErrorMessage: err.Error()}
	} else {
		result.ArtifactURL = res.ArtifactURL
	}

	snapshot, err := p.store.ResolveTrack(ctx, t, result)
	if err != nil {
		log.Error("Failed to record track result", "error", err)
		return fmt.Errorf("track %d: failed to record result: %w", t.TrackNumber, err)
	}
	p.publishTrack(t)
	p.publishTask(snapshot)
	return nil
}

func (p *Processor) bundle(ctx context.Context, run *taskRun) error {
	if err := p.transition(ctx, run, domain.TaskStatusZipping, store.TaskUpdate{}); err != nil {
		return err
	}

	completed, err := p.store.ListTracksByStatus(ctx, run.task.ID, domain.TrackStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to list completed tracks: %w", err)
	}
	entries := make([]archive.Entry, 0, len(completed))
	for _, t := range completed {
		entries = append(entries, archive.Entry{
			Name: storage.ArchiveEntryName(t.TrackNumber, t.Title),
			Path: storage.TrackScratchPath(p.scratchDir, run.task.ID, acquire.ArtifactID(t)),
		})
	}

	url, err := p.archiver.Build(ctx, run.task.ID, entries)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		run.log.Warn("Bundle failed, completing with tracks only", "error", err)
		msg := fmt.Sprintf("%s: %v; %s", constants.MsgBundleFailed, err, constants.MsgBundleFailedSuffix)
		if err := p.transition(ctx, run, domain.TaskStatusCompleted, store.TaskUpdate{ErrorMessage: &msg}); err != nil {
			return err
		}
	} else if err := p.transition(ctx, run, domain.TaskStatusCompleted, store.TaskUpdate{BundleURL: &url}); err != nil {
		return err
	}

	if p.reclaimer != nil {
		p.reclaimer.ScheduleReclaim(run.task.ID)
	}
	return nil
}

// fail settles every unresolved track and moves the task to failed when its
// current status allows it.
func (p *Processor) fail(ctx context.Context, run *taskRun, msg string) error {
	if run.task == nil || !run.task.Status.CanTransition(domain.TaskStatusFailed) {
		return nil
	}
	n, err := p.store.FailUnresolvedTracks(ctx, run.task.ID, msg)
	if err != nil {
		run.log.Error("Failed to settle tracks", "error", err)
		return err
	}
	if n > 0 {
		run.log.Warn("Settled unresolved tracks", "count", n)
	}
	return p.transition(ctx, run, domain.TaskStatusFailed, store.TaskUpdate{ErrorMessage: &msg})
}

func (p *Processor) transition(ctx context.Context, run *taskRun, to domain.TaskStatus, upd store.TaskUpdate) error {
	from := run.task.Status
	task, err := p.store.TransitionTask(ctx, run.task.ID, from, to, upd)
	if err != nil {
		return err
	}
	run.task = task
	run.log.Info("Task status changed", "from", from, "to", to)
	p.publishTask(task)
	return nil
}

func (p *Processor) publishTask(t *domain.Task) {
	if p.publisher != nil && t != nil {
		p.publisher.Publish(realtime.TaskTopic(t.ID), realtime.NewTaskEvent(t))
	}
}

func (p *Processor) publishTrack(t *domain.Track) {
	if p.publisher != nil {
		p.publisher.Publish(realtime.TaskTopic(t.TaskID), realtime.NewTrackEvent(t))
	}
}
