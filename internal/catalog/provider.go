// Package catalog resolves a playlist reference into an ordered track list.
package catalog

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrInvalidPlaylistURL = errors.New("invalid playlist reference")
	ErrPlaylistNotFound   = errors.New("playlist not found")
)

// TrackInfo is one playlist entry as reported by the metadata provider.
type TrackInfo struct {
	SourceID   string `json:"sourceId"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	CoverURL   string `json:"coverUrl"`
	DurationMs int    `json:"durationMs"`
}

type PlaylistProvider interface {
	FetchPlaylist(ctx context.Context, playlistID string) ([]TrackInfo, error)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ParsePlaylistID accepts an open.spotify.com playlist URL, a
// spotify:playlist: URI, or a bare id.
func ParsePlaylistID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidPlaylistURL
	}

	if rest, ok := strings.CutPrefix(ref, "spotify:playlist:"); ok {
		return checkID(rest)
	}

	if !strings.Contains(ref, "/") {
		return checkID(ref)
	}

	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrInvalidPlaylistURL
	}
	if !strings.HasSuffix(u.Hostname(), "spotify.com") {
		return "", ErrInvalidPlaylistURL
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "playlist" {
			return checkID(segments[i+1])
		}
	}
	return "", ErrInvalidPlaylistURL
}

func checkID(id string) (string, error) {
	if !idPattern.MatchString(id) {
		return "", ErrInvalidPlaylistURL
	}
	return id, nil
}
