package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/domain"
)

const trackColumns = `id, task_id, track_number, source_id, title, artist, duration_ms, cover_url, status, artifact_url, error_message, created_at, updated_at`

// TrackResult is the resolution of one track by the acquisition pipeline.
type TrackResult struct {
	Status       domain.TrackStatus
	ArtifactURL  string
	ErrorMessage string
}

// UpsertTracks writes the track list of a task, keyed on track number, and
// resets every row to pending. Rows beyond the new list are kept but marked
// failed. Only the rows of the new list are returned, in track order.
func (db *DB) UpsertTracks(ctx context.Context, taskID string, tracks []*domain.Track) ([]*domain.Track, error) {
	var stored []*domain.Track
	err := db.RunInTx(ctx, func(tx *DB) error {
		ts := now()
		query := `INSERT INTO tracks (task_id, track_number, source_id, title, artist, duration_ms, cover_url, status, artifact_url, error_message, created_at, updated_at)
			VALUES (:task_id, :track_number, :source_id, :title, :artist, :duration_ms, :cover_url, :status, '', '', :created_at, :updated_at)
			ON CONFLICT(task_id, track_number) DO UPDATE SET
				source_id = excluded.source_id,
				title = excluded.title,
				artist = excluded.artist,
				duration_ms = excluded.duration_ms,
				cover_url = excluded.cover_url,
				status = excluded.status,
				artifact_url = '',
				error_message = '',
				updated_at = excluded.updated_at`

		for _, t := range tracks {
			t.TaskID = taskID
			t.Status = domain.TrackStatusPending
			t.CreatedAt = ts
			t.UpdatedAt = ts
			if _, err := tx.NamedExecContext(ctx, query, t); err != nil {
				return fmt.Errorf("failed to upsert track %d: %w", t.TrackNumber, err)
			}
		}

		surplus := `UPDATE tracks SET status = ?, artifact_url = '', error_message = ?, updated_at = ?
			WHERE task_id = ? AND track_number > ?`
		if _, err := tx.ExecContext(ctx, surplus, domain.TrackStatusFailed, constants.MsgRemovedFromPlaylist, ts, taskID, len(tracks)); err != nil {
			return fmt.Errorf("failed to retire surplus tracks: %w", err)
		}

		query = `SELECT ` + trackColumns + ` FROM tracks WHERE task_id = ? AND track_number <= ? ORDER BY track_number ASC`
		return tx.SelectContext(ctx, &stored, query, taskID, len(tracks))
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (db *DB) ListTracks(ctx context.Context, taskID string) ([]*domain.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE task_id = ? ORDER BY track_number ASC`

	var tracks []*domain.Track
	err := db.SelectContext(ctx, &tracks, query, taskID)
	return tracks, err
}

func (db *DB) ListTracksByStatus(ctx context.Context, taskID string, status domain.TrackStatus) ([]*domain.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE task_id = ? AND status = ? ORDER BY track_number ASC`

	var tracks []*domain.Track
	err := db.SelectContext(ctx, &tracks, query, taskID, status)
	return tracks, err
}

func (db *DB) GetTrack(ctx context.Context, id int64) (*domain.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`

	track := &domain.Track{}
	err := db.GetContext(ctx, track, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return track, nil
}

// MarkTrackDownloading moves a pending track to downloading.
func (db *DB) MarkTrackDownloading(ctx context.Context, id int64) error {
	query := `UPDATE tracks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := db.ExecContext(ctx, query, domain.TrackStatusDownloading, now(), id, domain.TrackStatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("track %d pending -> downloading: %w", id, ErrStaleStatus)
	}
	return nil
}

// ResolveTrack settles a downloading track and recomputes the owning task's
// tracks_downloaded in the same transaction. It returns the task snapshot
// as of that commit.
func (db *DB) ResolveTrack(ctx context.Context, track *domain.Track, result TrackResult) (*domain.Task, error) {
	if !domain.TrackStatusDownloading.CanTransition(result.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, domain.TrackStatusDownloading, result.Status)
	}

	var task *domain.Task
	err := db.RunInTx(ctx, func(tx *DB) error {
		ts := now()
		query := `UPDATE tracks SET status = ?, artifact_url = ?, error_message = ?, updated_at = ?
			WHERE id = ? AND status = ?`
		res, err := tx.ExecContext(ctx, query, result.Status, result.ArtifactURL, result.ErrorMessage, ts,
			track.ID, domain.TrackStatusDownloading)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("track %d downloading -> %s: %w", track.ID, result.Status, ErrStaleStatus)
		}

		recount := `UPDATE download_tasks
			SET tracks_downloaded = (SELECT COUNT(*) FROM tracks WHERE task_id = ? AND status = ?),
			    updated_at = ?
			WHERE id = ?`
		res, err = tx.ExecContext(ctx, recount, track.TaskID, domain.TrackStatusCompleted, ts, track.TaskID)
		if err != nil {
			return err
		}
		if err := checkAffected(res, "task "+track.TaskID); err != nil {
			return err
		}

		task, err = tx.GetTask(ctx, track.TaskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	track.Status = result.Status
	track.ArtifactURL = result.ArtifactURL
	track.ErrorMessage = result.ErrorMessage
	return task, nil
}

// FailUnresolvedTracks marks every pending or downloading track of the task
// failed, so a task that is about to fail leaves no track unsettled.
func (db *DB) FailUnresolvedTracks(ctx context.Context, taskID, msg string) (int64, error) {
	query := `UPDATE tracks SET status = ?, error_message = ?, updated_at = ?
		WHERE task_id = ? AND status IN (?, ?)`
	res, err := db.ExecContext(ctx, query, domain.TrackStatusFailed, msg, now(), taskID,
		domain.TrackStatusPending, domain.TrackStatusDownloading)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) CountTracksByStatus(ctx context.Context, taskID string, status domain.TrackStatus) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM tracks WHERE task_id = ? AND status = ?`, taskID, status)
	return count, err
}

// ListRecentFailedTracks returns the most recently failed tracks across all tasks.
func (db *DB) ListRecentFailedTracks(ctx context.Context, limit int) ([]*domain.FailedTrack, error) {
	query := `SELECT task_id, title, artist, error_message, updated_at FROM tracks
		WHERE status = ? ORDER BY updated_at DESC LIMIT ?`

	var tracks []*domain.FailedTrack
	err := db.SelectContext(ctx, &tracks, query, domain.TrackStatusFailed, limit)
	return tracks, err
}
