package tagging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
)

// Minimal JPEG header, enough for content sniffing.
var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func writeFakeMP3(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "track.mp3")
	// MPEG frame sync followed by padding; id3v2 only needs a readable file.
	data := append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 256)...)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("Failed to write mp3: %v", err)
	}
	return p
}

func TestTagMP3(t *testing.T) {
	path := writeFakeMP3(t)

	err := TagMP3(path, Metadata{
		Title:  "Águas de Março",
		Artist: "Elis Regina, Tom Jobim",
		Cover:  jpegBytes,
	})
	if err != nil {
		t.Fatalf("TagMP3 failed: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer tag.Close()

	if tag.Title() != "Águas de Março" {
		t.Errorf("Expected title, got %q", tag.Title())
	}
	if tag.Artist() != "Elis Regina, Tom Jobim" {
		t.Errorf("Expected artist, got %q", tag.Artist())
	}

	comments := tag.GetFrames(tag.CommonID("Comments"))
	if len(comments) != 1 {
		t.Fatalf("Expected 1 comment frame, got %d", len(comments))
	}
	if cf, ok := comments[0].(id3v2.CommentFrame); !ok || cf.Text != "Downloaded via spotdown" {
		t.Errorf("Unexpected comment frame %+v", comments[0])
	}

	pics := tag.GetFrames(tag.CommonID("Attached picture"))
	if len(pics) != 1 {
		t.Fatalf("Expected 1 picture frame, got %d", len(pics))
	}
	pf, ok := pics[0].(id3v2.PictureFrame)
	if !ok {
		t.Fatalf("Expected PictureFrame, got %T", pics[0])
	}
	if pf.PictureType != id3v2.PTFrontCover {
		t.Errorf("Expected front cover, got %d", pf.PictureType)
	}
	if pf.MimeType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", pf.MimeType)
	}
}

func TestTagMP3_NoCoverIsFine(t *testing.T) {
	path := writeFakeMP3(t)
	if err := TagMP3(path, Metadata{Title: "Song", Comment: "custom"}); err != nil {
		t.Fatalf("TagMP3 failed: %v", err)
	}

	// Retagging replaces rather than duplicates the comment
	if err := TagMP3(path, Metadata{Title: "Song", Comment: "custom"}); err != nil {
		t.Fatalf("TagMP3 failed: %v", err)
	}

	tag, _ := id3v2.Open(path, id3v2.Options{Parse: true})
	defer tag.Close()
	if got := len(tag.GetFrames(tag.CommonID("Comments"))); got != 1 {
		t.Errorf("Expected 1 comment frame after retag, got %d", got)
	}
	if got := len(tag.GetFrames(tag.CommonID("Attached picture"))); got != 0 {
		t.Errorf("Expected no picture frame, got %d", got)
	}
}

func TestTagMP3_MissingFile(t *testing.T) {
	if err := TagMP3(filepath.Join(t.TempDir(), "missing.mp3"), Metadata{Title: "x"}); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFetchCover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write(jpegBytes)
	}))
	defer srv.Close()

	ctx := context.Background()
	data, err := FetchCover(ctx, srv.Client(), srv.URL+"/cover.jpg")
	if err != nil {
		t.Fatalf("FetchCover failed: %v", err)
	}
	if len(data) != len(jpegBytes) {
		t.Errorf("Expected %d bytes, got %d", len(jpegBytes), len(data))
	}

	if _, err := FetchCover(ctx, srv.Client(), srv.URL+"/missing.jpg"); err == nil {
		t.Error("Expected error for 404")
	}
	if _, err := FetchCover(ctx, nil, "file:///etc/passwd"); err == nil {
		t.Error("Expected error for non-http scheme")
	}
	data, err = FetchCover(ctx, nil, "")
	if err != nil || data != nil {
		t.Errorf("Expected nil, nil for empty URL, got %v, %v", data, err)
	}
}

func TestFetchCover_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := maxCoverBytes
		if r.URL.Path == "/huge.jpg" {
			size++
		}
		w.Write(make([]byte, size))
	}))
	defer srv.Close()

	ctx := context.Background()
	if _, err := FetchCover(ctx, srv.Client(), srv.URL+"/huge.jpg"); !errors.Is(err, ErrCoverTooLarge) {
		t.Errorf("Expected ErrCoverTooLarge, got %v", err)
	}

	data, err := FetchCover(ctx, srv.Client(), srv.URL+"/limit.jpg")
	if err != nil {
		t.Fatalf("Expected cover at the limit to pass, got %v", err)
	}
	if len(data) != maxCoverBytes {
		t.Errorf("Expected %d bytes, got %d", maxCoverBytes, len(data))
	}
}
