package blob

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cesargomez89/spotdown/internal/storage"
)

// DirStore keeps objects as files under a local root. Keys map to
// slash-separated relative paths.
type DirStore struct {
	root    string
	baseURL string
}

func NewDirStore(root, baseURL string) (*DirStore, error) {
	if err := storage.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}
	return &DirStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (d *DirStore) Root() string {
	return d.root
}

func (d *DirStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(d.root, clean), nil
}

func (d *DirStore) Put(ctx context.Context, key, localPath, contentType string) (string, error) {
	dst, err := d.path(key)
	if err != nil {
		return "", err
	}
	if err := storage.EnsureDir(filepath.Dir(dst)); err != nil {
		return "", err
	}

	in, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := storage.CreateFile(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		storage.RemoveFile(tmp)
		return "", fmt.Errorf("failed to copy %s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		storage.RemoveFile(tmp)
		return "", err
	}
	if err := storage.MoveFile(tmp, dst); err != nil {
		return "", err
	}
	return d.URL(key), nil
}

func (d *DirStore) Delete(ctx context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := storage.RemoveFile(p); err != nil && !storage.IsNotExist(err) {
		return err
	}
	if parent := filepath.Dir(p); parent != filepath.Clean(d.root) {
		_ = storage.DeleteFolderIfEmpty(parent)
	}
	return nil
}

func (d *DirStore) List(ctx context.Context, prefix string, limit int) (Listing, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasSuffix(p, ".part") {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return Listing{}, err
	}

	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		return Listing{Keys: keys[:limit], Truncated: true}, nil
	}
	return Listing{Keys: keys}, nil
}

func (d *DirStore) DeleteBatch(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := d.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (d *DirStore) URL(key string) string {
	return d.baseURL + "/" + key
}
