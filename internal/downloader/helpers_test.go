package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cesargomez89/spotdown/internal/acquire"
	"github.com/cesargomez89/spotdown/internal/archive"
	"github.com/cesargomez89/spotdown/internal/blob"
	"github.com/cesargomez89/spotdown/internal/catalog"
	"github.com/cesargomez89/spotdown/internal/domain"
	"github.com/cesargomez89/spotdown/internal/logger"
	"github.com/cesargomez89/spotdown/internal/realtime"
	"github.com/cesargomez89/spotdown/internal/storage"
	"github.com/cesargomez89/spotdown/internal/store"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newBlobStore(t *testing.T) *blob.DirStore {
	t.Helper()
	s, err := blob.NewDirStore(filepath.Join(t.TempDir(), "blobs"), "http://localhost/files")
	if err != nil {
		t.Fatalf("Failed to create blob store: %v", err)
	}
	return s
}

func trackInfos(n int) []catalog.TrackInfo {
	infos := make([]catalog.TrackInfo, n)
	for i := range infos {
		infos[i] = catalog.TrackInfo{
			SourceID:   fmt.Sprintf("src%d", i+1),
			Title:      fmt.Sprintf("Song %d", i+1),
			Artist:     "Artist",
			DurationMs: 180000,
		}
	}
	return infos
}

// enqueue creates a pending task and its job the way submission does.
func enqueue(t *testing.T, db *store.DB, taskID, ref string) *domain.Job {
	t.Helper()
	ctx := context.Background()
	if err := db.CreateTask(ctx, &domain.Task{ID: taskID, PlaylistRef: ref}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	job := &domain.Job{
		ID:      "job-" + taskID,
		Payload: domain.JobPayload{TaskID: taskID, PlaylistRef: ref},
	}
	if err := db.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	return job
}

// fakeAcquirer writes a scratch file for every track it succeeds on, the
// way the real pipeline leaves one behind for bundling.
type fakeAcquirer struct {
	scratchDir string
	fail       map[string]bool
	block      chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32
}

func (f *fakeAcquirer) Acquire(ctx context.Context, taskID string, track *domain.Track) (*acquire.Result, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		time.Sleep(5 * time.Millisecond)
	}

	if f.fail[track.SourceID] {
		return nil, fmt.Errorf("%w (soundcloud: no match)", acquire.ErrNotFoundAnySource)
	}

	id := acquire.ArtifactID(track)
	path := storage.TrackScratchPath(f.scratchDir, taskID, id)
	if err := storage.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := storage.WriteFile(path, []byte("audio "+id)); err != nil {
		return nil, err
	}
	return &acquire.Result{
		ArtifactURL: "http://localhost/files/" + blob.TrackKey(taskID, id),
		LocalPath:   path,
		Provider:    "soundcloud",
	}, nil
}

type fakeArchiver struct {
	err     error
	mu      sync.Mutex
	calls   int
	entries []archive.Entry
}

func (f *fakeArchiver) Build(ctx context.Context, taskID string, entries []archive.Entry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.entries = append([]archive.Entry(nil), entries...)
	if f.err != nil {
		return "", f.err
	}
	return "http://localhost/files/" + blob.ArchiveKey(taskID), nil
}

type fakeReclaimer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeReclaimer) ScheduleReclaim(taskID string) {
	f.mu.Lock()
	f.ids = append(f.ids, taskID)
	f.mu.Unlock()
}

func (f *fakeReclaimer) scheduled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

// recorder keeps every published event in order.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(topic string, event realtime.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.events...)
}

type harness struct {
	db        *store.DB
	catalog   *catalog.StaticProvider
	acquirer  *fakeAcquirer
	archiver  Archiver
	reclaimer *fakeReclaimer
	events    *recorder
	scratch   string
	processor *Processor
}

func newHarness(t *testing.T, playlists map[string][]catalog.TrackInfo, archiver Archiver, trackSlots int) *harness {
	t.Helper()
	scratch := t.TempDir()
	h := &harness{
		db:        setupTestDB(t),
		catalog:   catalog.NewStaticProvider(playlists),
		acquirer:  &fakeAcquirer{scratchDir: scratch, fail: map[string]bool{}},
		archiver:  archiver,
		reclaimer: &fakeReclaimer{},
		events:    &recorder{},
		scratch:   scratch,
	}
	h.processor = NewProcessor(ProcessorConfig{
		Store:      h.db,
		Catalog:    h.catalog,
		Acquirer:   h.acquirer,
		Archiver:   h.archiver,
		Reclaimer:  h.reclaimer,
		Publisher:  h.events,
		Logger:     logger.Discard(),
		ScratchDir: scratch,
		TrackSlots: trackSlots,
	})
	return h
}

func (h *harness) task(t *testing.T, id string) *domain.Task {
	t.Helper()
	task, err := h.db.GetTask(context.Background(), id)
	if err != nil || task == nil {
		t.Fatalf("GetTask failed: %v (%v)", err, task)
	}
	return task
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

var errBucket = errors.New("bucket unavailable")
