package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
)

type countingObserver struct {
	mu       sync.Mutex
	stored   int
	dedup    int
	verified map[bool]int
}

func (o *countingObserver) ObjectStored(_ string, _ int64, deduplicated bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stored++
	if deduplicated {
		o.dedup++
	}
}

func (o *countingObserver) ObjectVerified(_ string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.verified == nil {
		o.verified = map[bool]int{}
	}
	o.verified[ok]++
}

func newFilesystem(t *testing.T) (*Filesystem, *countingObserver) {
	t.Helper()
	obs := &countingObserver{}
	fs, err := NewFilesystem(t.TempDir(), obs)
	require.NoError(t, err)
	return fs, obs
}

func countObjects(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(filepath.Join(root, "objects"), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestFilesystemWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fs, obs := newFilesystem(t)

	first, err := fs.Write(ctx, []byte("SSN 123-45-6789"))
	require.NoError(t, err)
	second, err := fs.Write(ctx, []byte("SSN 123-45-6789"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, objects.PathFor(first.Hash), first.Path)
	assert.Equal(t, int64(15), first.Size)
	assert.Equal(t, 1, countObjects(t, fs.Root()))
	assert.Equal(t, 2, obs.stored)
	assert.Equal(t, 1, obs.dedup)

	info, err := os.Stat(filepath.Join(fs.Root(), filepath.FromSlash(first.Path)))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())

	data, err := fs.Read(ctx, first.Path)
	require.NoError(t, err)
	assert.Equal(t, "SSN 123-45-6789", string(data))
}

func TestFilesystemEmptyObject(t *testing.T) {
	ctx := context.Background()
	fs, _ := newFilesystem(t)

	obj, err := fs.Write(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, objects.Address(nil), obj.Hash)
	assert.Zero(t, obj.Size)

	data, err := fs.Read(ctx, obj.Path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFilesystemConcurrentIdenticalWrites(t *testing.T) {
	ctx := context.Background()
	fs, _ := newFilesystem(t)
	payload := []byte("same bytes from many writers")

	var wg sync.WaitGroup
	results := make([]objects.Object, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fs.Write(ctx, payload)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 1, countObjects(t, fs.Root()))
}

func TestFilesystemVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	fs, obs := newFilesystem(t)

	obj, err := fs.Write(ctx, []byte("original"))
	require.NoError(t, err)

	ok, actual, err := fs.Verify(ctx, obj.Path, obj.Hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, obj.Hash, actual)

	ok, _, err = fs.Verify(ctx, obj.Path, "  "+obj.Hash+"\n")
	require.NoError(t, err)
	assert.True(t, ok, "expected hash is normalized")

	abs := filepath.Join(fs.Root(), filepath.FromSlash(obj.Path))
	require.NoError(t, os.Chmod(abs, 0o644))
	require.NoError(t, os.WriteFile(abs, []byte("tampered"), 0o644))

	ok, actual, err = fs.Verify(ctx, obj.Path, obj.Hash)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, objects.Address([]byte("tampered")), actual)
	assert.Equal(t, 1, obs.verified[false])
}

func TestFilesystemMissingAndMalformed(t *testing.T) {
	ctx := context.Background()
	fs, _ := newFilesystem(t)
	missing := objects.PathFor(objects.Address([]byte("never stored")))

	_, err := fs.Read(ctx, missing)
	assert.ErrorIs(t, err, custody.ErrNotFound)

	_, _, err = fs.Verify(ctx, missing, objects.Address([]byte("never stored")))
	assert.ErrorIs(t, err, custody.ErrNotFound)

	_, err = fs.Read(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, custody.ErrValidation)
}

func TestFilesystemHonorsCancellation(t *testing.T) {
	fs, _ := newFilesystem(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fs.Write(ctx, []byte("late"))
	assert.ErrorIs(t, err, context.Canceled)
}
