package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/cesargomez89/spotdown/internal/acquire"
	"github.com/cesargomez89/spotdown/internal/app"
	"github.com/cesargomez89/spotdown/internal/archive"
	"github.com/cesargomez89/spotdown/internal/blob"
	"github.com/cesargomez89/spotdown/internal/catalog"
	"github.com/cesargomez89/spotdown/internal/config"
	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/downloader"
	httpapp "github.com/cesargomez89/spotdown/internal/http"
	"github.com/cesargomez89/spotdown/internal/logger"
	"github.com/cesargomez89/spotdown/internal/observability"
	"github.com/cesargomez89/spotdown/internal/realtime"
	"github.com/cesargomez89/spotdown/internal/store"
)

const shutdownTimeout = 10 * time.Second

// env holds what every command needs: validated config, a logger and the
// open database.
type env struct {
	cfg *config.Config
	log *logger.Logger
	db  *store.DB
}

func openEnv(cmd *cli.Command) (*env, error) {
	cfg, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		e.log.Error("Failed to close DB", "error", err)
	}
}

// blobs returns the artifact store. The second value is the local store
// when artifacts are served by this process.
func (e *env) blobs() (blob.Store, *blob.DirStore, error) {
	if e.cfg.UsesS3() {
		return blob.NewS3Store(blob.S3Config{
			Endpoint:        e.cfg.ResolvedS3Endpoint(),
			Region:          e.cfg.S3Region,
			AccessKeyID:     e.cfg.S3AccessKeyID,
			SecretAccessKey: e.cfg.S3SecretAccessKey,
			Bucket:          e.cfg.S3Bucket,
			PublicBaseURL:   e.cfg.PublicBaseURL,
		}), nil, nil
	}

	dir, err := blob.NewDirStore(e.cfg.BlobDir, e.cfg.PublicBaseURL+constants.FilesRoutePath)
	if err != nil {
		return nil, nil, err
	}
	return dir, dir, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API and the download engine",
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.cfg.ValidateCredentials(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, "spotdown", e.cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			e.log.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			e.log.Error("Failed to shutdown metrics", "error", err)
		}
	}()
	if err := observability.RegisterQueueDepth(e.db); err != nil {
		e.log.Warn("Failed to register queue depth metric", "error", err)
	}

	blobs, dir, err := e.blobs()
	if err != nil {
		return err
	}

	playlists := catalog.NewCachedProvider(catalog.NewSpotifyProvider(catalog.SpotifyConfig{
		ClientID:     e.cfg.SpotifyClientID,
		ClientSecret: e.cfg.SpotifyClientSecret,
		APIURL:       e.cfg.SpotifyAPIURL,
		TokenURL:     e.cfg.SpotifyTokenURL,
	}), e.db, e.cfg.PlaylistCacheTTL)

	pipeline := acquire.NewPipeline(acquire.PipelineConfig{
		Sources: acquire.DefaultSources(acquire.ExtractorConfig{
			YTDLPPath:   e.cfg.YTDLPPath,
			FFmpegPath:  e.cfg.FFmpegPath,
			CookiesPath: e.cfg.CookiesPath,
		}),
		Store:      blobs,
		ScratchDir: e.cfg.ScratchDir,
		Logger:     e.log,
	})

	hub := realtime.NewHub()
	w := downloader.NewWorker(downloader.Deps{
		Store:     e.db,
		Catalog:   playlists,
		Acquirer:  pipeline,
		Archiver:  archive.NewBuilder(blobs, e.cfg.ScratchDir, e.log),
		Blobs:     blobs,
		Publisher: hub,
		Config:    e.cfg,
		Logger:    e.log,
	})
	w.Start()
	defer w.Stop()

	h := httpapp.NewHandler(app.NewTaskService(e.db, e.log), hub, e.log)
	h.Metrics = metricsHandler
	if dir != nil {
		h.Files = http.FileServer(http.Dir(dir.Root()))
	}

	srv := &http.Server{
		Addr:              ":" + e.cfg.Port,
		Handler:           httpapp.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	e.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Queue a playlist for download",
		ArgsUsage: "<playlist-url>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("expected exactly one playlist URL")
			}
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			task, err := app.NewTaskService(e.db, e.log).Submit(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			fmt.Println(task.ID)
			return nil
		},
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Expire finished tasks older than the expiration threshold",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			blobs, _, err := e.blobs()
			if err != nil {
				return err
			}
			reaper := downloader.NewReaper(downloader.ReaperConfig{
				Store:        e.db,
				Blobs:        blobs,
				Logger:       e.log,
				Threshold:    e.cfg.ExpirationThreshold,
				Interval:     e.cfg.SweepInterval,
				ReclaimDelay: e.cfg.ReclaimDelay,
			})
			defer reaper.Stop()

			n, err := reaper.Sweep(ctx)
			fmt.Printf("expired %d task(s)\n", n)
			return err
		},
	}
}

func failuresCommand() *cli.Command {
	return &cli.Command{
		Name:  "failures",
		Usage: "List recently failed tracks",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of failures to show",
				Value: constants.DefaultFailureLimit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			failures, err := app.NewTaskService(e.db, e.log).RecentFailures(ctx, cmd.Int("limit"))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tTASK\tTRACK\tERROR")
			for _, f := range failures {
				fmt.Fprintf(tw, "%s\t%s\t%s - %s\t%s\n",
					f.UpdatedAt.Format(time.RFC3339), f.TaskID, f.Artist, f.Title, f.ErrorMessage)
			}
			return tw.Flush()
		},
	}
}
