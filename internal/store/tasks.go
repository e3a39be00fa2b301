package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cesargomez89/spotdown/internal/domain"
)

const taskColumns = `id, status, playlist_ref, total_tracks, tracks_downloaded, bundle_url, error_message, created_at, updated_at`

// TaskUpdate lists optional column changes applied alongside a status transition.
type TaskUpdate struct {
	TotalTracks  *int
	BundleURL    *string
	ErrorMessage *string
}

func (db *DB) CreateTask(ctx context.Context, task *domain.Task) error {
	ts := now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = ts
	}
	task.UpdatedAt = task.CreatedAt
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}

	query := `INSERT INTO download_tasks (` + taskColumns + `)
		VALUES (:id, :status, :playlist_ref, :total_tracks, :tracks_downloaded, :bundle_url, :error_message, :created_at, :updated_at)`

	_, err := db.NamedExecContext(ctx, query, task)
	return err
}

func (db *DB) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM download_tasks WHERE id = ?`

	task := &domain.Task{}
	err := db.GetContext(ctx, task, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// TransitionTask moves a task from one status to the next, guarded by the
// current status, and returns the updated row.
func (db *DB) TransitionTask(ctx context.Context, id string, from, to domain.TaskStatus, upd TaskUpdate) (*domain.Task, error) {
	if err := domain.CheckTaskTransition(from, to); err != nil {
		return nil, err
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{to, now()}
	if upd.TotalTracks != nil {
		sets = append(sets, "total_tracks = ?")
		args = append(args, *upd.TotalTracks)
	}
	if upd.BundleURL != nil {
		sets = append(sets, "bundle_url = ?")
		args = append(args, *upd.BundleURL)
	}
	if upd.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *upd.ErrorMessage)
	}
	args = append(args, id, from)

	var task *domain.Task
	err := db.RunInTx(ctx, func(tx *DB) error {
		query := `UPDATE download_tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status = ?`
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("task %s %s -> %s: %w", id, from, to, ErrStaleStatus)
		}
		task, err = tx.GetTask(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ResetTaskForRetry puts a non-terminal task back to pending so a
// re-admitted job can run it from the start.
func (db *DB) ResetTaskForRetry(ctx context.Context, id string) error {
	query := `UPDATE download_tasks
		SET status = ?, total_tracks = 0, tracks_downloaded = 0, bundle_url = '', error_message = '', updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)`
	res, err := db.ExecContext(ctx, query, domain.TaskStatusPending, now(), id,
		domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusExpired)
	if err != nil {
		return err
	}
	return checkAffected(res, "resettable task "+id)
}

// ListExpirable returns completed or failed tasks last updated before the cutoff.
func (db *DB) ListExpirable(ctx context.Context, before time.Time) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM download_tasks
		WHERE status IN (?, ?) AND updated_at < ?
		ORDER BY updated_at ASC`

	var tasks []*domain.Task
	err := db.SelectContext(ctx, &tasks, query,
		domain.TaskStatusCompleted, domain.TaskStatusFailed, before.UTC())
	return tasks, err
}

func (db *DB) ListTasks(ctx context.Context, limit int) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM download_tasks ORDER BY created_at DESC LIMIT ?`

	var tasks []*domain.Task
	err := db.SelectContext(ctx, &tasks, query, limit)
	return tasks, err
}

// SetTaskUpdatedAt overwrites updated_at, mainly to backdate tasks in tests.
func (db *DB) SetTaskUpdatedAt(ctx context.Context, id string, at time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE download_tasks SET updated_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return err
	}
	return checkAffected(res, "task "+id)
}
