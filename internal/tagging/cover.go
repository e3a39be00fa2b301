package tagging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cesargomez89/spotdown/internal/constants"
)

const maxCoverBytes = 10 << 20

var ErrCoverTooLarge = errors.New("cover image too large")

// FetchCover downloads cover art. An empty URL yields no data and no error.
func FetchCover(ctx context.Context, client *http.Client, urlStr string) ([]byte, error) {
	if urlStr == "" {
		return nil, nil
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsedURL.Scheme)
	}

	if client == nil {
		client = &http.Client{}
	}
	ctx, cancel := context.WithTimeout(ctx, constants.ImageHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", constants.ExtractUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d (URL: %s)", resp.StatusCode, urlStr)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > maxCoverBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrCoverTooLarge, maxCoverBytes)
	}
	return data, nil
}
