package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/httpclient"
)

// SpotifyProvider reads playlists from the Spotify Web API using the
// client credentials flow.
type SpotifyProvider struct {
	client  *httpclient.Client
	baseURL string
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	TokenURL     string
}

func NewSpotifyProvider(cfg SpotifyConfig) *SpotifyProvider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	base := &http.Client{Timeout: constants.DefaultHTTPTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	authed := cc.Client(ctx)
	authed.Timeout = constants.DefaultHTTPTimeout

	limiter := rate.NewLimiter(rate.Limit(constants.DefaultRequestsPerSec), constants.DefaultRequestsPerSec)

	return &SpotifyProvider{
		client:  httpclient.NewClient(authed, limiter),
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
	}
}

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyAlbum struct {
	Images []spotifyImage `json:"images"`
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	DurationMS int             `json:"duration_ms"`
	Artists    []spotifyArtist `json:"artists"`
	Album      spotifyAlbum    `json:"album"`
}

type playlistTracksPage struct {
	Next  *string `json:"next"`
	Items []struct {
		Track *spotifyTrack `json:"track"`
	} `json:"items"`
}

// FetchPlaylist follows the paginated tracks endpoint until next is empty.
// Local files and removed entries come back without a track and are skipped.
func (p *SpotifyProvider) FetchPlaylist(ctx context.Context, playlistID string) ([]TrackInfo, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", constants.SpotifyPageSize))
	q.Set("fields", constants.SpotifyTrackFields)
	next := fmt.Sprintf("%s/playlists/%s/tracks?%s", p.baseURL, url.PathEscape(playlistID), q.Encode())

	var tracks []TrackInfo
	for next != "" {
		var page playlistTracksPage
		if err := p.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, toTrackInfo(item.Track))
		}

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}

	return tracks, nil
}

func toTrackInfo(t *spotifyTrack) TrackInfo {
	names := lo.Map(t.Artists, func(a spotifyArtist, _ int) string { return a.Name })

	info := TrackInfo{
		SourceID:   t.ID,
		Title:      t.Name,
		Artist:     strings.Join(names, ", "),
		DurationMs: t.DurationMS,
	}
	if len(t.Album.Images) > 0 {
		info.CoverURL = t.Album.Images[0].URL
	}
	return info
}

func (p *SpotifyProvider) getJSON(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("spotify request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrPlaylistNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("spotify API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode spotify response: %w", err)
	}
	return nil
}
