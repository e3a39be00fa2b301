package catalog

import (
	"context"
	"encoding/json"
	"time"
)

type Cache interface {
	GetCache(ctx context.Context, key string) ([]byte, error)
	SetCache(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// CachedProvider memoizes playlist track lists, so a re-admitted job does
// not page through the API again.
type CachedProvider struct {
	provider PlaylistProvider
	cache    Cache
	cacheTTL time.Duration
}

func NewCachedProvider(provider PlaylistProvider, cache Cache, cacheTTL time.Duration) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (c *CachedProvider) FetchPlaylist(ctx context.Context, playlistID string) ([]TrackInfo, error) {
	cacheKey := "playlist:" + playlistID

	data, err := c.cache.GetCache(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	if data != nil {
		var tracks []TrackInfo
		if err := json.Unmarshal(data, &tracks); err == nil {
			return tracks, nil
		}
	}

	tracks, err := c.provider.FetchPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tracks); err == nil {
		_ = c.cache.SetCache(ctx, cacheKey, data, c.cacheTTL)
	}

	return tracks, nil
}
