package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeS3 implements the handful of path-style S3 calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/bucket")
	key := strings.TrimPrefix(path, "/")
	q := r.URL.Query()

	switch {
	case r.Method == http.MethodPut && key != "":
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = string(body)
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodDelete && key != "":
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet && q.Get("list-type") == "2":
		prefix := q.Get("prefix")
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>bucket</Name>`)
		count := 0
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>1</Size></Contents>", k)
				count++
			}
		}
		fmt.Fprintf(&b, "<KeyCount>%d</KeyCount><IsTruncated>false</IsTruncated></ListBucketResult>", count)
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, b.String())

	case r.Method == http.MethodPost && q.Has("delete"):
		body, _ := io.ReadAll(r.Body)
		for _, part := range strings.Split(string(body), "<Key>")[1:] {
			k := part[:strings.Index(part, "</Key>")]
			delete(f.objects, k)
		}
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)

	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store := NewS3Store(S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "bucket",
		PublicBaseURL:   "https://cdn.example.com/",
	})
	ctx := context.Background()

	src := writeTemp(t, "audio-bytes")
	url, err := store.Put(ctx, "tracks/t1/a.mp3", src, "audio/mpeg")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if url != "https://cdn.example.com/tracks/t1/a.mp3" {
		t.Errorf("Unexpected URL %s", url)
	}
	store.Put(ctx, "tracks/t1/b.mp3", src, "audio/mpeg")
	store.Put(ctx, "t1.zip", src, "application/zip")

	fake.mu.Lock()
	if fake.objects["tracks/t1/a.mp3"] != "audio-bytes" {
		t.Errorf("Expected uploaded body, got %q", fake.objects["tracks/t1/a.mp3"])
	}
	if fake.types["t1.zip"] != "application/zip" {
		t.Errorf("Expected content type application/zip, got %q", fake.types["t1.zip"])
	}
	fake.mu.Unlock()

	page, err := store.List(ctx, "tracks/t1/", 1000)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Keys) != 2 || page.Truncated {
		t.Errorf("Expected 2 keys, got %+v", page)
	}

	n, err := DeletePrefix(ctx, store, "tracks/t1/")
	if err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 deleted, got %d", n)
	}

	if err := store.Delete(ctx, "t1.zip"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.objects) != 0 {
		t.Errorf("Expected bucket to be empty, got %v", fake.objects)
	}
}
