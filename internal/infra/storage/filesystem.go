package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
)

// Filesystem stores objects under root using the fan-out layout
// objects/<hash[0:2]>/<hash>. Stored files are made read-only.
type Filesystem struct {
	root     string
	group    singleflight.Group
	observer Observer
}

// NewFilesystem creates root if needed.
func NewFilesystem(root string, observer Observer) (*Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving object root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, "objects"), 0o750); err != nil {
		return nil, fmt.Errorf("creating object root: %w", err)
	}
	return &Filesystem{root: abs, observer: observerOrNop(observer)}, nil
}

// Root returns the absolute repository root.
func (s *Filesystem) Root() string { return s.root }

func (s *Filesystem) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Write stores data under its hash. Concurrent writers of the same content
// share one write; an existing object is never rewritten.
func (s *Filesystem) Write(ctx context.Context, data []byte) (objects.Object, error) {
	hash := objects.Address(data)
	obj := objects.Object{Hash: hash, Path: objects.PathFor(hash), Size: int64(len(data))}

	existed, err := sharedWrite(ctx, &s.group, hash, func(context.Context) (bool, error) {
		return s.writeOnce(obj.Path, data)
	})
	if err != nil {
		return objects.Object{}, err
	}
	s.observer.ObjectStored("filesystem", obj.Size, existed)
	return obj, nil
}

// writeOnce reports whether the object already existed.
func (s *Filesystem) writeOnce(rel string, data []byte) (bool, error) {
	finalPath := s.abs(rel)
	if _, err := os.Stat(finalPath); err == nil {
		return true, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat object: %w", err)
	}

	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false, fmt.Errorf("creating object shard directory: %w", err)
	}

	// Atomic write: temp file + rename.
	tmpFile, err := os.CreateTemp(dir, ".obj-*.tmp")
	if err != nil {
		return false, fmt.Errorf("creating temp object file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return false, fmt.Errorf("writing object data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return false, fmt.Errorf("syncing object data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return false, fmt.Errorf("closing temp object file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		return false, fmt.Errorf("making object read-only: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return false, fmt.Errorf("renaming object file: %w", err)
	}
	success = true

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return false, nil
}

func (s *Filesystem) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := objects.ParsePath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.abs(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, custody.NotFound("object", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", path, err)
	}
	return data, nil
}

func (s *Filesystem) Verify(ctx context.Context, path, expectedHash string) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}
	if _, err := objects.ParsePath(path); err != nil {
		return false, "", err
	}
	f, err := os.Open(s.abs(path))
	if errors.Is(err, fs.ErrNotExist) {
		return false, "", custody.NotFound("object", path)
	}
	if err != nil {
		return false, "", fmt.Errorf("opening object %s: %w", path, err)
	}
	defer f.Close()

	actual, err := objects.AddressOf(f)
	if err != nil {
		return false, "", fmt.Errorf("hashing object %s: %w", path, err)
	}
	ok := actual == normalizeHash(expectedHash)
	s.observer.ObjectVerified("filesystem", ok)
	return ok, actual, nil
}
