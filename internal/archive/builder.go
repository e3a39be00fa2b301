// Package archive bundles acquired tracks into a single zip and uploads it.
package archive

import (
	"archive/zip"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cesargomez89/spotdown/internal/blob"
	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/logger"
	"github.com/cesargomez89/spotdown/internal/storage"
)

var ErrEmptyArchive = errors.New("no track files to archive")

var tracer = otel.Tracer("github.com/cesargomez89/spotdown/internal/archive")

// Entry is one file inside the bundle.
type Entry struct {
	Name string
	Path string
}

type Builder struct {
	store      blob.Store
	scratchDir string
	logger     *logger.Logger
}

func NewBuilder(store blob.Store, scratchDir string, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Default()
	}
	return &Builder{
		store:      store,
		scratchDir: scratchDir,
		logger:     log.WithComponent("archive"),
	}
}

// Build zips the entries with maximum compression, uploads the bundle and
// returns its URL. Missing files are skipped. The local zip is always removed.
func (b *Builder) Build(ctx context.Context, taskID string, entries []Entry) (string, error) {
	ctx, span := tracer.Start(ctx, "archive.build")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID), attribute.Int("archive.entries", len(entries)))

	url, err := b.build(ctx, taskID, entries)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return url, err
}

func (b *Builder) build(ctx context.Context, taskID string, entries []Entry) (string, error) {
	log := b.logger.WithTask(taskID)
	zipPath := storage.ArchiveScratchPath(b.scratchDir, taskID)
	defer func() {
		if err := storage.RemoveFile(zipPath); err != nil && !storage.IsNotExist(err) {
			log.Warn("Failed to remove local archive", "path", zipPath, "error", err)
		}
	}()

	written, err := b.write(ctx, log, zipPath, entries)
	if err != nil {
		return "", err
	}
	if written == 0 {
		return "", ErrEmptyArchive
	}

	url, err := b.store.Put(ctx, blob.ArchiveKey(taskID), zipPath, constants.MimeTypeZip)
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}
	log.Info("Archive uploaded", "entries", written, "url", url)
	return url, nil
}

func (b *Builder) write(ctx context.Context, log *logger.Logger, zipPath string, entries []Entry) (int, error) {
	if err := storage.EnsureDir(b.scratchDir); err != nil {
		return 0, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	f, err := storage.CreateFile(zipPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	written := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return written, err
		}
		ok, err := addFile(zw, e)
		if err != nil {
			_ = zw.Close()
			return written, fmt.Errorf("failed to add %s: %w", e.Name, err)
		}
		if !ok {
			log.Warn("Track file missing, skipping", "entry", e.Name, "path", e.Path)
			continue
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("failed to finish archive: %w", err)
	}
	return written, f.Close()
}

func addFile(zw *zip.Writer, e Entry) (bool, error) {
	src, err := os.Open(e.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(w, src); err != nil {
		return false, err
	}
	return true, nil
}
