package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/pvgrid-cache/internal/cache"
)

func TestPutGet(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Get(ctx, "grid_a")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	assert.NoFileExists(t, s.Path("grid_a"))

	wrote, err := s.PutIfAbsent(ctx, "grid_a", []byte("payload"))
	require.NoError(t, err)
	assert.True(t, wrote)

	b, err := s.Get(ctx, "grid_a")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
	assert.FileExists(t, s.Path("grid_a"))

	assert.True(t, strings.HasSuffix(s.Path("grid_a"), ".pvgrid"))
}

func TestPutIfAbsent_FirstWriterWins(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wrote, err := s.PutIfAbsent(ctx, "grid_race", []byte(fmt.Sprintf("writer-%02d", i)))
			assert.NoError(t, err)
			if wrote {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	b, err := s.Get(ctx, "grid_race")
	require.NoError(t, err)
	assert.Regexp(t, `^writer-\d\d$`, string(b))
}

func TestPutIfAbsent_LeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.PutIfAbsent(ctx, "grid_x", []byte("1"))
	require.NoError(t, err)
	_, err = s.PutIfAbsent(ctx, "grid_x", []byte("2"))
	require.NoError(t, err)

	var files []string
	require.NoError(t, filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, filepath.Base(p))
		}
		return err
	}))
	assert.Equal(t, []string{"grid_x.pvgrid"}, files)
}

func TestRemove(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Remove(ctx, "grid_missing"))

	_, err = s.PutIfAbsent(ctx, "grid_r", []byte("old"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, "grid_r"))
	wrote, err := s.PutIfAbsent(ctx, "grid_r", []byte("new"))
	require.NoError(t, err)
	assert.True(t, wrote)
	b, err := s.Get(ctx, "grid_r")
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}

func TestCancelledContext(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.PutIfAbsent(ctx, "k", []byte("v"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
