package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cesargomez89/spotdown/internal/blob"
	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/domain"
	"github.com/cesargomez89/spotdown/internal/logger"
	"github.com/cesargomez89/spotdown/internal/storage"
	"github.com/cesargomez89/spotdown/internal/tagging"
)

var tracer = otel.Tracer("github.com/cesargomez89/spotdown/internal/acquire")

// Result is a track that went through the whole pipeline.
type Result struct {
	ArtifactURL string
	LocalPath   string
	Provider    string
	DurationSec float64
}

// Pipeline tries each source in order until one yields a file inside the
// duration window, then tags and uploads it. The local file is kept for
// bundling and removed by the caller with the rest of the task scratch.
type Pipeline struct {
	sources     []Source
	store       blob.Store
	scratchDir  string
	coverClient *http.Client
	comment     string
	logger      *logger.Logger
}

type PipelineConfig struct {
	Sources     []Source
	Store       blob.Store
	ScratchDir  string
	CoverClient *http.Client
	TagComment  string
	Logger      *logger.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.CoverClient == nil {
		cfg.CoverClient = &http.Client{Timeout: constants.ImageHTTPTimeout}
	}
	if cfg.TagComment == "" {
		cfg.TagComment = constants.DefaultTagComment
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	return &Pipeline{
		sources:     cfg.Sources,
		store:       cfg.Store,
		scratchDir:  cfg.ScratchDir,
		coverClient: cfg.CoverClient,
		comment:     cfg.TagComment,
		logger:      cfg.Logger.WithComponent("acquire"),
	}
}

// ArtifactID names the track's files. It is keyed on the playlist position
// so a song listed twice gets two files.
func ArtifactID(track *domain.Track) string {
	if id := storage.Sanitize(track.SourceID); id != "" {
		return fmt.Sprintf("%d-%s", track.TrackNumber, id)
	}
	return fmt.Sprintf("track-%d", track.TrackNumber)
}

func (p *Pipeline) Acquire(ctx context.Context, taskID string, track *domain.Track) (*Result, error) {
	ctx, span := tracer.Start(ctx, "track.acquire")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.Int("track.number", track.TrackNumber),
	)

	res, err := p.acquire(ctx, taskID, track)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("track.provider", res.Provider))
	return res, nil
}

func (p *Pipeline) acquire(ctx context.Context, taskID string, track *domain.Track) (*Result, error) {
	log := p.logger.WithTask(taskID).WithTrack(track.TrackNumber, track.Title)

	query := BuildQuery(track.Title, track.Artist)
	if query == "" {
		return nil, fmt.Errorf("%w (%w)", ErrNotFoundAnySource, ErrEmptyQuery)
	}
	window := NewWindow(track.DurationMs)
	id := ArtifactID(track)
	out := storage.TrackScratchPath(p.scratchDir, taskID, id)
	if err := storage.EnsureDir(storage.TaskScratchDir(p.scratchDir, taskID)); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	var (
		cand    *Candidate
		matched string
		reasons []string
	)
	for _, src := range p.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := src.Provider.Name()
		c, err := p.attempt(ctx, src, Request{Query: query, Window: window, OutputPath: out, Timeout: src.Timeout})
		if err != nil {
			if ctx.Err() != nil {
				removePartials(out)
				return nil, ctx.Err()
			}
			var exitErr *ExitError
			if errors.As(err, &exitErr) {
				log.Debug("Extractor failed", "provider", name, "stderr", exitErr.Stderr)
			}
			log.Info("Provider attempt failed", "provider", name, "query", query, "error", err)
			reasons = append(reasons, reason(name, err))
			removePartials(out)
			continue
		}
		cand, matched = c, name
		break
	}
	if cand == nil {
		return nil, fmt.Errorf("%w (%s)", ErrNotFoundAnySource, strings.Join(reasons, "; "))
	}
	log.Info("Track acquired", "provider", matched, "duration", cand.DurationSec, "window", window.String())

	p.tag(ctx, log, cand.Path, track)

	url, err := p.store.Put(ctx, blob.TrackKey(taskID, id), cand.Path, constants.MimeTypeMP3)
	if err != nil {
		return nil, fmt.Errorf("failed to upload track: %w", err)
	}

	return &Result{
		ArtifactURL: url,
		LocalPath:   cand.Path,
		Provider:    matched,
		DurationSec: cand.DurationSec,
	}, nil
}

// attempt runs one provider and enforces the window whatever the provider
// claims to have filtered.
func (p *Pipeline) attempt(ctx context.Context, src Source, req Request) (*Candidate, error) {
	ctx, span := tracer.Start(ctx, "provider.attempt")
	defer span.End()
	span.SetAttributes(attribute.String("provider", src.Provider.Name()))

	c, err := src.Provider.Attempt(ctx, req)
	if err == nil && !req.Window.Contains(c.DurationSec) {
		err = fmt.Errorf("%.0fs not in %s: %w", c.DurationSec, req.Window.String(), ErrDurationMismatch)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return c, nil
}

// tag is best effort; an untagged file is still a valid track.
func (p *Pipeline) tag(ctx context.Context, log *logger.Logger, path string, track *domain.Track) {
	cover, err := tagging.FetchCover(ctx, p.coverClient, track.CoverURL)
	if err != nil {
		log.Warn("Failed to fetch cover", "url", track.CoverURL, "error", err)
	}
	meta := tagging.Metadata{
		Title:   track.Title,
		Artist:  track.Artist,
		Comment: p.comment,
		Cover:   cover,
	}
	if err := tagging.TagMP3(path, meta); err != nil {
		log.Warn("Failed to tag track", "error", err)
	}
}

func reason(provider string, err error) string {
	switch {
	case errors.Is(err, ErrAttemptTimeout):
		return provider + ": timeout"
	case errors.Is(err, ErrDurationMismatch):
		return provider + ": duration mismatch"
	case errors.Is(err, ErrNoMatch):
		return provider + ": no match"
	default:
		return provider + ": failed"
	}
}
