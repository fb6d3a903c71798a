// Package storage holds the content-addressed object store backends.
package storage

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
)

// Observer receives store events. The metrics registry implements it.
type Observer interface {
	ObjectStored(backend string, size int64, deduplicated bool)
	ObjectVerified(backend string, ok bool)
}

type nopObserver struct{}

func (nopObserver) ObjectStored(string, int64, bool) {}
func (nopObserver) ObjectVerified(string, bool)      {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// sharedWrite runs write once per key across concurrent callers. The write
// is detached from the cancellation of whichever caller started it; a caller
// whose ctx ends stops waiting and gets ctx.Err. write reports whether the
// object already existed.
func sharedWrite(ctx context.Context, g *singleflight.Group, key string, write func(context.Context) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	detached := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (any, error) {
		return write(detached)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func normalizeHash(h string) string { return strings.ToLower(strings.TrimSpace(h)) }

var (
	_ objects.Store = (*Filesystem)(nil)
	_ objects.Store = (*MinIO)(nil)
)
