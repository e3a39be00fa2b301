package domain

import (
	"errors"
	"testing"
)

func TestTaskStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{TaskStatusPending, TaskStatusFetchingMetadata, true},
		{TaskStatusFetchingMetadata, TaskStatusDownloading, true},
		{TaskStatusFetchingMetadata, TaskStatusFailed, true},
		{TaskStatusDownloading, TaskStatusZipping, true},
		{TaskStatusDownloading, TaskStatusFailed, true},
		{TaskStatusZipping, TaskStatusCompleted, true},
		{TaskStatusCompleted, TaskStatusExpired, true},
		{TaskStatusFailed, TaskStatusExpired, true},

		{TaskStatusPending, TaskStatusDownloading, false},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusDownloading, TaskStatusCompleted, false},
		{TaskStatusZipping, TaskStatusDownloading, false},
		{TaskStatusCompleted, TaskStatusFailed, false},
		{TaskStatusExpired, TaskStatusPending, false},
		{TaskStatusExpired, TaskStatusExpired, false},
		{TaskStatusPending, TaskStatusExpired, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCheckTaskTransition(t *testing.T) {
	if err := CheckTaskTransition(TaskStatusPending, TaskStatusFetchingMetadata); err != nil {
		t.Errorf("Expected valid transition, got %v", err)
	}
	err := CheckTaskTransition(TaskStatusPending, TaskStatusZipping)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	terminal := map[TaskStatus]bool{
		TaskStatusPending:          false,
		TaskStatusFetchingMetadata: false,
		TaskStatusDownloading:      false,
		TaskStatusZipping:          false,
		TaskStatusCompleted:        true,
		TaskStatusFailed:           true,
		TaskStatusExpired:          true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestTrackStatus_CanTransition(t *testing.T) {
	if !TrackStatusPending.CanTransition(TrackStatusDownloading) {
		t.Error("Expected pending -> downloading")
	}
	if !TrackStatusDownloading.CanTransition(TrackStatusCompleted) {
		t.Error("Expected downloading -> completed")
	}
	if !TrackStatusDownloading.CanTransition(TrackStatusFailed) {
		t.Error("Expected downloading -> failed")
	}
	if TrackStatusPending.CanTransition(TrackStatusCompleted) {
		t.Error("Did not expect pending -> completed")
	}
	if TrackStatusCompleted.CanTransition(TrackStatusDownloading) {
		t.Error("Did not expect completed -> downloading")
	}
}

func TestJobPayload_ValueScan(t *testing.T) {
	p := JobPayload{TaskID: "t1", PlaylistRef: "https://open.spotify.com/playlist/abc"}
	v, err := p.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var got JobPayload
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got != p {
		t.Errorf("Expected %+v, got %+v", p, got)
	}

	if err := got.Scan(nil); err != nil || got != (JobPayload{}) {
		t.Errorf("Expected empty payload for nil, got %+v (%v)", got, err)
	}
	if err := got.Scan(42); err == nil {
		t.Error("Expected error for unsupported type")
	}
}
