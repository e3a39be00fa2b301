package downloader

import (
	"context"
	"sync"

	"github.com/cesargomez89/spotdown/internal/blob"
	"github.com/cesargomez89/spotdown/internal/catalog"
	"github.com/cesargomez89/spotdown/internal/config"
	"github.com/cesargomez89/spotdown/internal/logger"
	"github.com/cesargomez89/spotdown/internal/realtime"
	"github.com/cesargomez89/spotdown/internal/store"
)

// Deps are the collaborators the engine is wired with.
type Deps struct {
	Store     *store.DB
	Catalog   catalog.PlaylistProvider
	Acquirer  TrackAcquirer
	Archiver  Archiver
	Blobs     blob.Store
	Publisher realtime.Publisher
	Config    *config.Config
	Logger    *logger.Logger
}

// Worker owns the poller, scheduler, processor and reaper of one engine
// instance.
type Worker struct {
	Scheduler *Scheduler
	Poller    *Poller
	Processor *Processor
	Reaper    *Reaper
	Logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewWorker(deps Deps) *Worker {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	cfg := deps.Config

	reaper := NewReaper(ReaperConfig{
		Store:        deps.Store,
		Blobs:        deps.Blobs,
		Publisher:    deps.Publisher,
		Logger:       log,
		Threshold:    cfg.ExpirationThreshold,
		Interval:     cfg.SweepInterval,
		ReclaimDelay: cfg.ReclaimDelay,
	})
	processor := NewProcessor(ProcessorConfig{
		Store:      deps.Store,
		Catalog:    deps.Catalog,
		Acquirer:   deps.Acquirer,
		Archiver:   deps.Archiver,
		Reclaimer:  reaper,
		Publisher:  deps.Publisher,
		Logger:     log,
		ScratchDir: cfg.ScratchDir,
		TrackSlots: cfg.TrackConcurrency,
	})
	scheduler := NewScheduler(cfg.JobConcurrency, processor.Process, log)
	poller := NewPoller(deps.Store, scheduler, cfg.PollInterval, cfg.StuckJobTimeout, log)

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		Scheduler: scheduler,
		Poller:    poller,
		Processor: processor,
		Reaper:    reaper,
		Logger:    log.WithComponent("worker"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (w *Worker) Start() {
	w.Logger.Info("Starting worker")

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.Poller.Run(w.ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.Reaper.Run(w.ctx)
	}()
}

// Stop cancels polling and in-flight tasks and waits for them to release
// their jobs.
func (w *Worker) Stop() {
	w.Logger.Info("Stopping worker")
	w.cancel()
	w.wg.Wait()
	w.Scheduler.Wait()
	w.Reaper.Stop()
}
