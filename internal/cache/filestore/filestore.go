// Package filestore keeps grid artifacts as files under a root directory,
// sharded into 256 subdirectories by key hash.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/pvgrid-cache/internal/cache"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
)

const ext = ".pvgrid"

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("filestore root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore mkdir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Path is where key lives on disk.
func (s *Store) Path(key string) string {
	shard := fmt.Sprintf("%02x", xxhash.Sum64String(key)&0xff)
	return filepath.Join(s.root, shard, key+ext)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	b, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		observability.ObserveCacheOp("file_get", nil, time.Since(start).Seconds())
		return nil, cache.ErrNotFound
	}
	observability.ObserveCacheOp("file_get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("filestore read %s: %w", key, err)
	}
	return b, nil
}

// Remove deletes key; a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore remove %s: %w", key, err)
	}
	return nil
}

// PutIfAbsent writes val to a temp file in the target directory and links it
// into place, so readers see either nothing or the whole artifact. A key that
// already exists is left untouched.
func (s *Store) PutIfAbsent(ctx context.Context, key string, val []byte) (wrote bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	start := time.Now()
	defer func() { observability.ObserveCacheOp("file_put", err, time.Since(start).Seconds()) }()

	final := s.Path(key)
	if _, err := os.Stat(final); err == nil {
		return false, nil
	}
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("filestore mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+key+"-*")
	if err != nil {
		return false, fmt.Errorf("filestore temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(val); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("filestore write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("filestore sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("filestore close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return false, fmt.Errorf("filestore chmod %s: %w", key, err)
	}

	// link fails if the target exists, which gives first-writer-wins
	err = os.Link(tmpName, final)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	}
	// filesystems without hard links: fall back to rename
	if _, serr := os.Stat(final); serr == nil {
		return false, nil
	}
	if err := os.Rename(tmpName, final); err != nil {
		return false, fmt.Errorf("filestore rename %s: %w", key, err)
	}
	return true, nil
}
