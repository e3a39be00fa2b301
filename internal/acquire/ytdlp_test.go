package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const fakeExtractor = `#!/bin/sh
printf '%s\n' "$@" > '@ARGS@'
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
target=$(printf '%s' "$out" | sed 's/%(ext)s/mp3/')
@BODY@
`

func writeExtractor(t *testing.T, body string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script extractor")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := strings.ReplaceAll(fakeExtractor, "@ARGS@", argsFile)
	script = strings.ReplaceAll(script, "@BODY@", body)
	bin := filepath.Join(dir, "yt-dlp")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write extractor: %v", err)
	}
	return bin, argsFile
}

func testRequest(t *testing.T) Request {
	return Request{
		Query:      "Song Artist",
		Window:     NewWindow(180000),
		OutputPath: filepath.Join(t.TempDir(), "abc.mp3"),
		Timeout:    5 * time.Second,
	}
}

func TestYTDLPAttemptSuccess(t *testing.T) {
	bin, argsFile := writeExtractor(t, `printf 'ID3fake' > "$target"
echo 181.5`)
	p := NewSoundCloud(ExtractorConfig{YTDLPPath: bin, FFmpegPath: "/usr/bin/ffmpeg"})
	req := testRequest(t)

	cand, err := p.Attempt(context.Background(), req)
	if err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if cand.Path != req.OutputPath {
		t.Errorf("Expected path %s, got %s", req.OutputPath, cand.Path)
	}
	if cand.DurationSec != 181.5 {
		t.Errorf("Expected duration 181.5, got %v", cand.DurationSec)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("Failed to read args: %v", err)
	}
	args := string(raw)
	for _, want := range []string{"--force-ipv4", "--no-playlist", "--ffmpeg-location", "duration >= 160 & duration <= 200", "scsearch3:Song Artist"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected args to contain %q, got:\n%s", want, args)
		}
	}
	if strings.Contains(args, "--cookies") {
		t.Error("Expected no cookies for soundcloud")
	}
}

func TestYTDLPYouTubeFiltersAndCookies(t *testing.T) {
	bin, argsFile := writeExtractor(t, `printf 'ID3fake' > "$target"
echo 180`)
	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookies, []byte("# Netscape"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewYouTube(ExtractorConfig{YTDLPPath: bin, CookiesPath: cookies})

	if _, err := p.Attempt(context.Background(), testRequest(t)); err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}

	raw, _ := os.ReadFile(argsFile)
	args := string(raw)
	for _, want := range []string{"--cookies", cookies, "!is_live & !is_upcoming & duration >= 160", "ytsearch3:Song Artist", "User-Agent:"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected args to contain %q, got:\n%s", want, args)
		}
	}
}

func TestYTDLPMaxDownloadsExitAccepted(t *testing.T) {
	bin, _ := writeExtractor(t, `printf 'ID3fake' > "$target"
echo 175
exit 101`)
	p := NewVimeo(ExtractorConfig{YTDLPPath: bin})

	cand, err := p.Attempt(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Expected exit 101 to be accepted, got %v", err)
	}
	if cand.DurationSec != 175 {
		t.Errorf("Expected duration 175, got %v", cand.DurationSec)
	}
}

func TestYTDLPNoFileIsNoMatch(t *testing.T) {
	bin, _ := writeExtractor(t, `exit 0`)
	p := NewSoundCloud(ExtractorConfig{YTDLPPath: bin})

	_, err := p.Attempt(context.Background(), testRequest(t))
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("Expected ErrNoMatch, got %v", err)
	}
}

func TestYTDLPFailureKeepsStderr(t *testing.T) {
	bin, _ := writeExtractor(t, `echo "ERROR: boom" >&2
exit 1`)
	p := NewSoundCloud(ExtractorConfig{YTDLPPath: bin})

	_, err := p.Attempt(context.Background(), testRequest(t))
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected ExitError, got %v", err)
	}
	if exitErr.Stderr != "ERROR: boom" {
		t.Errorf("Expected stderr to be kept, got %q", exitErr.Stderr)
	}
	if strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected stderr to stay out of the error message, got %q", err.Error())
	}
}

func TestYTDLPTimeoutKillsProcess(t *testing.T) {
	bin, _ := writeExtractor(t, `exec sleep 10`)
	p := NewSoundCloud(ExtractorConfig{YTDLPPath: bin})
	req := testRequest(t)
	req.Timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := p.Attempt(context.Background(), req)
	if !errors.Is(err, ErrAttemptTimeout) {
		t.Errorf("Expected ErrAttemptTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Expected the process to be killed promptly, took %s", elapsed)
	}
}

func TestParseDuration(t *testing.T) {
	if got := parseDuration("[info] x\n212.0\n"); got != 212 {
		t.Errorf("Expected 212, got %v", got)
	}
	if got := parseDuration("NA\n"); got != -1 {
		t.Errorf("Expected -1 for unknown duration, got %v", got)
	}
}
