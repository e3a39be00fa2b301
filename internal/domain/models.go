package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
)

// Job is the queue row that asks the engine to process one task
type Job struct {
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	ID        string     `json:"id" db:"id"`
	Status    JobStatus  `json:"status" db:"status"`
	Payload   JobPayload `json:"payload" db:"payload"`
}

// JobPayload is stored as a JSON column on the job row
type JobPayload struct {
	TaskID      string `json:"taskId"`
	PlaylistRef string `json:"playlistRef"`
}

type TaskStatus string

const (
	TaskStatusPending          TaskStatus = "pending"
	TaskStatusFetchingMetadata TaskStatus = "fetching_metadata"
	TaskStatusDownloading      TaskStatus = "downloading"
	TaskStatusZipping          TaskStatus = "zipping"
	TaskStatusCompleted        TaskStatus = "completed"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusExpired          TaskStatus = "expired"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:          {TaskStatusFetchingMetadata},
	TaskStatusFetchingMetadata: {TaskStatusDownloading, TaskStatusFailed},
	TaskStatusDownloading:      {TaskStatusZipping, TaskStatusFailed},
	TaskStatusZipping:          {TaskStatusCompleted, TaskStatusFailed},
	TaskStatusCompleted:        {TaskStatusExpired},
	TaskStatusFailed:           {TaskStatusExpired},
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true once the processor is done with the task.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusExpired
}

// CheckTaskTransition returns ErrInvalidTransition wrapped with both states.
func CheckTaskTransition(from, to TaskStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Task is one playlist-to-bundle download request
type Task struct {
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt" db:"updated_at"`
	ID               string     `json:"id" db:"id"`
	PlaylistRef      string     `json:"playlistRef" db:"playlist_ref"`
	Status           TaskStatus `json:"status" db:"status"`
	BundleURL        string     `json:"bundleUrl,omitempty" db:"bundle_url"`
	ErrorMessage     string     `json:"errorMessage,omitempty" db:"error_message"`
	TotalTracks      int        `json:"totalTracks" db:"total_tracks"`
	TracksDownloaded int        `json:"tracksDownloaded" db:"tracks_downloaded"`
}

type TrackStatus string

const (
	TrackStatusPending     TrackStatus = "pending"
	TrackStatusDownloading TrackStatus = "downloading"
	TrackStatusCompleted   TrackStatus = "completed"
	TrackStatusFailed      TrackStatus = "failed"
)

// CanTransition reports whether a track may move from s to next.
func (s TrackStatus) CanTransition(next TrackStatus) bool {
	switch s {
	case TrackStatusPending:
		return next == TrackStatusDownloading
	case TrackStatusDownloading:
		return next == TrackStatusCompleted || next == TrackStatusFailed
	}
	return false
}

// IsResolved is true once the pipeline has settled the track.
func (s TrackStatus) IsResolved() bool {
	return s == TrackStatusCompleted || s == TrackStatusFailed
}

// Track is one playlist entry within a task
type Track struct { //nolint:govet // field ordering prioritizes readability over memory alignment
	ID           int64       `json:"id" db:"id"`
	TaskID       string      `json:"taskId" db:"task_id"`
	TrackNumber  int         `json:"trackNumber" db:"track_number"`
	SourceID     string      `json:"sourceId" db:"source_id"`
	Title        string      `json:"title" db:"title"`
	Artist       string      `json:"artist" db:"artist"`
	DurationMs   int         `json:"durationMs" db:"duration_ms"`
	CoverURL     string      `json:"coverUrl,omitempty" db:"cover_url"`
	Status       TrackStatus `json:"status" db:"status"`
	ArtifactURL  string      `json:"artifactUrl,omitempty" db:"artifact_url"`
	ErrorMessage string      `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt    time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time   `json:"updatedAt" db:"updated_at"`
}

// FailedTrack is the diagnostic view of a failed track.
type FailedTrack struct {
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
	TaskID       string    `json:"taskId" db:"task_id"`
	Title        string    `json:"title" db:"title"`
	Artist       string    `json:"artist" db:"artist"`
	ErrorMessage string    `json:"errorMessage" db:"error_message"`
}
