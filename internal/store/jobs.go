package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cesargomez89/spotdown/internal/domain"
)

const jobColumns = `id, payload, status, created_at, started_at`

func (db *DB) CreateJob(ctx context.Context, job *domain.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}

	query := `INSERT INTO jobs (id, payload, status, created_at, started_at)
		VALUES (:id, :payload, :status, :created_at, :started_at)`

	_, err := db.NamedExecContext(ctx, query, job)
	return err
}

func (db *DB) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job := &domain.Job{}
	err := db.GetContext(ctx, job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListDequeueableJobs returns pending jobs plus processing jobs that were
// claimed before stuckBefore, oldest first.
func (db *DB) ListDequeueableJobs(ctx context.Context, stuckBefore time.Time) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = ?
		   OR (status = ? AND (started_at IS NULL OR started_at < ?))
		ORDER BY created_at ASC`

	var jobs []*domain.Job
	err := db.SelectContext(ctx, &jobs, query,
		domain.JobStatusPending, domain.JobStatusProcessing, stuckBefore.UTC())
	return jobs, err
}

// ClaimJob marks the job as processing and stamps started_at.
func (db *DB) ClaimJob(ctx context.Context, id string) error {
	query := `UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, query, domain.JobStatusProcessing, now(), id)
	if err != nil {
		return err
	}
	return checkAffected(res, "job "+id)
}

// ReleaseJob hands an interrupted job back to the queue as pending.
func (db *DB) ReleaseJob(ctx context.Context, id string) error {
	query := `UPDATE jobs SET status = ?, started_at = NULL WHERE id = ?`
	res, err := db.ExecContext(ctx, query, domain.JobStatusPending, id)
	if err != nil {
		return err
	}
	return checkAffected(res, "job "+id)
}

// DeleteJob removes the job row. Deleting a missing job is not an error.
func (db *DB) DeleteJob(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (db *DB) CountJobs(ctx context.Context) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM jobs`)
	return count, err
}
