package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cesargomez89/spotdown/internal/constants"
)

// Scratch space is partitioned by task id:
//
//	<root>/<taskId>/<sourceId>.mp3
//	<root>/<taskId>.zip

func TaskScratchDir(root, taskID string) string {
	return filepath.Join(root, Sanitize(taskID))
}

func TrackScratchPath(root, taskID, sourceID string) string {
	return filepath.Join(TaskScratchDir(root, taskID), Sanitize(sourceID)+constants.ExtMP3)
}

func ArchiveScratchPath(root, taskID string) string {
	return filepath.Join(root, Sanitize(taskID)+constants.ExtZip)
}

// RemoveTaskScratch deletes every local file the task produced.
func RemoveTaskScratch(root, taskID string) error {
	if err := os.RemoveAll(TaskScratchDir(root, taskID)); err != nil {
		return err
	}
	if err := os.Remove(ArchiveScratchPath(root, taskID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ArchiveEntryName is the file name a track gets inside the bundle.
func ArchiveEntryName(trackNumber int, title string) string {
	name := Sanitize(title)
	if name == "" {
		name = "track"
	}
	return fmt.Sprintf("%d-%s%s", trackNumber, name, constants.ExtMP3)
}
