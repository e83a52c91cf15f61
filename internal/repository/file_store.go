package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	"FinPeer/pkg/util"
)

const (
	bucketExt      = ".json"
	snapshotSuffix = "_Average.json"
)

// FileStore keeps one JSON document per bucket under <root>/<exchange>/ and
// its snapshot next to it as <industry>_Average.json. Writes go to a temp file
// in the same directory and are renamed into place.
type FileStore struct {
	root string
}

var _ drepo.Store = (*FileStore)(nil)

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file store: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) bucketPath(key models.BucketKey) string {
	return filepath.Join(s.root, util.SafeFileName(key.Exchange), util.SafeFileName(key.Industry)+bucketExt)
}

func (s *FileStore) snapshotPath(key models.BucketKey) string {
	return filepath.Join(s.root, util.SafeFileName(key.Exchange), util.SafeFileName(key.Industry)+snapshotSuffix)
}

func (s *FileStore) Load(_ context.Context, key models.BucketKey) (*models.Bucket, error) {
	data, err := os.ReadFile(s.bucketPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, drepo.ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read bucket %s: %w", key, err)
	}
	return decodeBucket(key, data)
}

func (s *FileStore) Save(_ context.Context, key models.BucketKey, b *models.Bucket) error {
	data, err := encodeBucket(b)
	if err != nil {
		return err
	}
	return writeAtomic(s.bucketPath(key), data)
}

func (s *FileStore) List(_ context.Context, exchange string) ([]models.BucketKey, error) {
	var exchanges []string
	if exchange != "" {
		exchanges = []string{exchange}
	} else {
		dirs, err := os.ReadDir(s.root)
		if err != nil {
			return nil, fmt.Errorf("list exchanges: %w", err)
		}
		for _, d := range dirs {
			if d.IsDir() {
				exchanges = append(exchanges, util.OriginalFileName(d.Name()))
			}
		}
	}

	var out []models.BucketKey
	for _, ex := range exchanges {
		entries, err := os.ReadDir(filepath.Join(s.root, util.SafeFileName(ex)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list buckets of %s: %w", ex, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, bucketExt) || strings.HasSuffix(name, snapshotSuffix) {
				continue
			}
			industry := util.OriginalFileName(strings.TrimSuffix(name, bucketExt))
			out = append(out, models.BucketKey{Exchange: ex, Industry: industry})
		}
	}
	sortKeys(out)
	return out, nil
}

func (s *FileStore) LoadSnapshot(_ context.Context, key models.BucketKey) (*models.StatSnapshot, error) {
	data, err := os.ReadFile(s.snapshotPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, drepo.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	return decodeSnapshot(key, data)
}

func (s *FileStore) SaveSnapshot(_ context.Context, key models.BucketKey, snap *models.StatSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return writeAtomic(s.snapshotPath(key), data)
}

func (s *FileStore) Close() error { return nil }

// writeAtomic replaces path with data so that readers observe either the
// previous content or the new content, never a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
