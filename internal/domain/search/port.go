package search

import (
	"context"

	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

// Repository persists index entries (tenant-scoped).
type Repository interface {
	Insert(ctx context.Context, scope tenancy.Scope, e *Entry) error
	// Find returns matches ordered most recent first, at most q.Limit.
	Find(ctx context.Context, scope tenancy.Scope, q Query) ([]Entry, error)
}
