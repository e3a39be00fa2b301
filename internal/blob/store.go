// Package blob persists track audio and bundles to object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/cesargomez89/spotdown/internal/constants"
)

var ErrListingStalled = errors.New("prefix listing did not shrink after delete")

// Listing is one page of keys under a prefix.
type Listing struct {
	Keys      []string
	Truncated bool
}

// Store is the object storage used for artifacts. Delete of a missing key
// is not an error.
type Store interface {
	Put(ctx context.Context, key, localPath, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, limit int) (Listing, error)
	DeleteBatch(ctx context.Context, keys []string) error
	URL(key string) string
}

const listPageSize = constants.MaxBatchDelete

// TrackPrefix is the key prefix holding every track artifact of a task.
func TrackPrefix(taskID string) string {
	return constants.TracksPrefix + "/" + taskID + "/"
}

func TrackKey(taskID, sourceID string) string {
	return path.Join(constants.TracksPrefix, taskID, sourceID+constants.ExtMP3)
}

func ArchiveKey(taskID string) string {
	return taskID + constants.ExtZip
}

// DeletePrefix removes every object under prefix, re-listing until the
// store reports the listing is no longer truncated. It returns the number
// of keys deleted.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	deleted := 0
	var previous []string
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		page, err := s.List(ctx, prefix, listPageSize)
		if err != nil {
			return deleted, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		if len(page.Keys) == 0 {
			return deleted, nil
		}
		if page.Truncated && sameKeys(previous, page.Keys) {
			return deleted, fmt.Errorf("%s: %w", prefix, ErrListingStalled)
		}

		if err := s.DeleteBatch(ctx, page.Keys); err != nil {
			return deleted, fmt.Errorf("failed to delete batch under %s: %w", prefix, err)
		}
		deleted += len(page.Keys)

		if !page.Truncated {
			return deleted, nil
		}
		previous = page.Keys
	}
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
