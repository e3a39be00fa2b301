package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/storage"
)

// yt-dlp exits with 101 when --max-downloads stops it after the first file.
const exitMaxDownloads = 101

const killGrace = 2 * time.Second

// ExtractorConfig locates the external binaries.
type ExtractorConfig struct {
	YTDLPPath   string
	FFmpegPath  string
	CookiesPath string
}

// YTDLP searches one site through yt-dlp and extracts the best match to MP3.
type YTDLP struct {
	name         string
	searchPrefix string
	cfg          ExtractorConfig
	filters      []string
	useCookies   bool
	userAgent    string
}

func NewSoundCloud(cfg ExtractorConfig) *YTDLP {
	return &YTDLP{name: "soundcloud", searchPrefix: "scsearch", cfg: cfg}
}

func NewVimeo(cfg ExtractorConfig) *YTDLP {
	return &YTDLP{name: "vimeo", searchPrefix: "vsearch", cfg: cfg}
}

func NewYouTube(cfg ExtractorConfig) *YTDLP {
	return &YTDLP{
		name:         "youtube",
		searchPrefix: "ytsearch",
		cfg:          cfg,
		filters:      []string{"!is_live & !is_upcoming"},
		useCookies:   true,
		userAgent:    constants.ExtractUserAgent,
	}
}

// DefaultSources is the fallback chain in priority order.
func DefaultSources(cfg ExtractorConfig) []Source {
	return []Source{
		{Provider: NewSoundCloud(cfg), Timeout: constants.SoundCloudTimeout},
		{Provider: NewVimeo(cfg), Timeout: constants.VimeoTimeout},
		{Provider: NewYouTube(cfg), Timeout: constants.YouTubeTimeout},
	}
}

func (y *YTDLP) Name() string {
	return y.name
}

func (y *YTDLP) args(req Request) []string {
	template := strings.TrimSuffix(req.OutputPath, constants.ExtMP3) + ".%(ext)s"

	args := []string{
		"--force-ipv4",
		"--no-check-certificates",
		"--geo-bypass",
		"--no-playlist",
		"--no-progress",
		"--max-downloads", "1",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--no-simulate",
		"--print", "after_move:duration",
		"-o", template,
	}
	if y.cfg.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", y.cfg.FFmpegPath)
	}
	if y.useCookies && y.cfg.CookiesPath != "" && storage.FileExists(y.cfg.CookiesPath) {
		args = append(args, "--cookies", y.cfg.CookiesPath)
	}
	if y.userAgent != "" {
		args = append(args, "--add-header", "User-Agent:"+y.userAgent)
	}

	filters := append([]string{}, y.filters...)
	if f := req.Window.MatchFilter(); f != "" {
		filters = append(filters, f)
	}
	if len(filters) > 0 {
		args = append(args, "--match-filter", strings.Join(filters, " & "))
	}

	query := fmt.Sprintf("%s%d:%s", y.searchPrefix, constants.SearchResultCount, req.Query)
	return append(args, query)
}

// Attempt runs yt-dlp once. The process is killed when req.Timeout elapses
// or ctx is cancelled.
func (y *YTDLP) Attempt(ctx context.Context, req Request) (*Candidate, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, y.cfg.YTDLPPath, y.args(req)...)
	cmd.WaitDelay = killGrace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", y.name, req.Timeout, ErrAttemptTimeout)
		}
		return nil, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != exitMaxDownloads {
			return nil, &ExitError{Provider: y.name, Err: err, Stderr: tail(stderr.String(), 512)}
		}
	}

	if !storage.FileExists(req.OutputPath) {
		return nil, fmt.Errorf("%s: %w", y.name, ErrNoMatch)
	}

	return &Candidate{Path: req.OutputPath, DurationSec: parseDuration(stdout.String())}, nil
}

// ExitError is a failed extractor run. Stderr is kept for logs only.
type ExitError struct {
	Err      error
	Provider string
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func parseDuration(out string) float64 {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if v, err := strconv.ParseFloat(strings.TrimSpace(lines[i]), 64); err == nil {
			return v
		}
	}
	return -1
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// removePartials deletes anything the extractor left next to outputPath.
func removePartials(outputPath string) {
	base := strings.TrimSuffix(outputPath, constants.ExtMP3)
	_ = os.Remove(outputPath)
	matches, _ := filepath.Glob(base + ".*")
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
