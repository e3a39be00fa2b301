package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cesargomez89/spotdown/internal/catalog"
	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/domain"
	"github.com/cesargomez89/spotdown/internal/logger"
	"github.com/cesargomez89/spotdown/internal/store"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskDetails is a task together with its tracks in playlist order.
type TaskDetails struct {
	Task   *domain.Task    `json:"task"`
	Tracks []*domain.Track `json:"tracks"`
}

type TaskService struct {
	Repo   *store.DB
	Logger *logger.Logger
}

func NewTaskService(repo *store.DB, log *logger.Logger) *TaskService {
	if log == nil {
		log = logger.Default()
	}
	return &TaskService{Repo: repo, Logger: log.WithComponent("tasks")}
}

// Submit validates the playlist reference and enqueues a new task. The task
// and its job are written in one transaction.
func (s *TaskService) Submit(ctx context.Context, playlistRef string) (*domain.Task, error) {
	ref := strings.TrimSpace(playlistRef)
	if _, err := catalog.ParsePlaylistID(ref); err != nil {
		return nil, err
	}

	task := &domain.Task{
		ID:          uuid.New().String(),
		PlaylistRef: ref,
		Status:      domain.TaskStatusPending,
	}
	job := &domain.Job{
		ID:      uuid.New().String(),
		Status:  domain.JobStatusPending,
		Payload: domain.JobPayload{TaskID: task.ID, PlaylistRef: ref},
	}

	err := s.Repo.RunInTx(ctx, func(tx *store.DB) error {
		if err := tx.CreateTask(ctx, task); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		if err := tx.CreateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Task submitted", "task_id", task.ID, "job_id", job.ID, "playlist", ref)
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, id string) (*TaskDetails, error) {
	task, err := s.Repo.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	tracks, err := s.Repo.ListTracks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return &TaskDetails{Task: task, Tracks: nonNil(tracks)}, nil
}

func (s *TaskService) ListTracks(ctx context.Context, id string) ([]*domain.Track, error) {
	task, err := s.Repo.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	tracks, err := s.Repo.ListTracks(ctx, id)
	if err != nil {
		return nil, err
	}
	return nonNil(tracks), nil
}

func (s *TaskService) ListTasks(ctx context.Context, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = constants.DefaultFailureLimit
	}
	return s.Repo.ListTasks(ctx, limit)
}

// RecentFailures lists the latest failed tracks across all tasks.
func (s *TaskService) RecentFailures(ctx context.Context, limit int) ([]*domain.FailedTrack, error) {
	if limit <= 0 {
		limit = constants.DefaultFailureLimit
	}
	return s.Repo.ListRecentFailedTracks(ctx, limit)
}

func nonNil(tracks []*domain.Track) []*domain.Track {
	if tracks == nil {
		return []*domain.Track{}
	}
	return tracks
}
