package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Normal Name", "Normal Name"},
		{"Slash/Name", "SlashName"},
		{"Colon:Name", "ColonName"},
		{"Trailing Dot.", "Trailing Dot"},
		{"AC/DC", "ACDC"},
		{"<Invalid>", "Invalid"},
		{"Tab\tName", "TabName"},
		{"Canção", "Canção"},
		{"東京", "東京"},
	}

	for _, tt := range tests {
		got := Sanitize(tt.input)
		if got != tt.expected {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestArchiveEntryName(t *testing.T) {
	if got := ArchiveEntryName(3, "What? Song"); got != "3-What Song.mp3" {
		t.Errorf("Unexpected entry name %q", got)
	}
	if got := ArchiveEntryName(1, "???"); got != "1-track.mp3" {
		t.Errorf("Unexpected entry name for empty title %q", got)
	}
}

func TestScratchLayout(t *testing.T) {
	root := t.TempDir()

	trackPath := TrackScratchPath(root, "task-1", "abc")
	if trackPath != filepath.Join(root, "task-1", "abc.mp3") {
		t.Errorf("Unexpected track path %s", trackPath)
	}
	if err := EnsureDir(filepath.Dir(trackPath)); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if err := WriteFile(trackPath, []byte("mp3")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	zipPath := ArchiveScratchPath(root, "task-1")
	if err := WriteFile(zipPath, []byte("zip")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Another task's scratch must survive
	otherPath := TrackScratchPath(root, "task-2", "abc")
	EnsureDir(filepath.Dir(otherPath))
	WriteFile(otherPath, []byte("mp3"))

	if !FileExists(trackPath) {
		t.Error("Expected track file to exist")
	}

	if err := RemoveTaskScratch(root, "task-1"); err != nil {
		t.Fatalf("RemoveTaskScratch failed: %v", err)
	}
	if _, err := os.Stat(TaskScratchDir(root, "task-1")); !os.IsNotExist(err) {
		t.Error("Expected task scratch dir to be removed")
	}
	if FileExists(zipPath) {
		t.Error("Expected archive to be removed")
	}
	if !FileExists(otherPath) {
		t.Error("Expected other task's files to remain")
	}

	// Removing twice is fine
	if err := RemoveTaskScratch(root, "task-1"); err != nil {
		t.Errorf("Second RemoveTaskScratch failed: %v", err)
	}
}

func TestDeleteFolderIfEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty")
	EnsureDir(dir)
	if err := DeleteFolderIfEmpty(dir); err != nil {
		t.Fatalf("DeleteFolderIfEmpty failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Expected empty dir to be removed")
	}
	if err := DeleteFolderIfEmpty(dir); err != nil {
		t.Errorf("Expected nil for missing dir, got %v", err)
	}
}
