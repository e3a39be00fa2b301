package dto

import (
	"strings"
	"testing"

	"github.com/cesargomez89/spotdown/internal/domain"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "playlistUrl", Message: "is required"}
	if err.Error() != "playlistUrl: is required" {
		t.Errorf("Error() = %q, want %q", err.Error(), "playlistUrl: is required")
	}
}

func TestValidationError_ToMap(t *testing.T) {
	err := ValidationError{Field: "playlistUrl", Message: "is required"}
	m := err.ToMap()
	if m["playlistUrl"] != "is required" {
		t.Errorf("ToMap() = %v, want {playlistUrl: is required}", m)
	}
}

func TestToResponse(t *testing.T) {
	errs := []ValidationError{
		{Field: "playlistUrl", Message: "is required"},
		{Field: "other", Message: "invalid"},
	}
	resp := ToResponse(errs)
	expected := "playlistUrl: is required; other: invalid"
	if resp != expected {
		t.Errorf("ToResponse() = %q, want %q", resp, expected)
	}
	if m := ToMap(errs); len(m) != 2 {
		t.Errorf("ToMap() returned %d items, want 2", len(m))
	}
}

func TestSubmitTaskRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid url", "https://open.spotify.com/playlist/abc", false},
		{"valid id", "abc123", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"too long", "https://open.spotify.com/playlist/" + strings.Repeat("a", 2048), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &SubmitTaskRequest{PlaylistURL: tt.url}
			errs := req.Validate()
			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", errs, tt.wantErr)
			}
		})
	}
}

func TestNewSubmitTaskResponse(t *testing.T) {
	resp := NewSubmitTaskResponse(&domain.Task{ID: "t1", Status: domain.TaskStatusPending})
	if resp.TaskID != "t1" || resp.Status != domain.TaskStatusPending {
		t.Errorf("Unexpected response %+v", resp)
	}
}
