package catalog

import (
	"context"
	"sync"
)

// StaticProvider serves fixed track lists keyed by playlist id.
type StaticProvider struct {
	Playlists map[string][]TrackInfo
	Err       error

	mu    sync.Mutex
	calls int
}

func NewStaticProvider(playlists map[string][]TrackInfo) *StaticProvider {
	return &StaticProvider{Playlists: playlists}
}

func (p *StaticProvider) FetchPlaylist(ctx context.Context, playlistID string) ([]TrackInfo, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	tracks, ok := p.Playlists[playlistID]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	return append([]TrackInfo(nil), tracks...), nil
}

// Calls returns how many times FetchPlaylist ran.
func (p *StaticProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
