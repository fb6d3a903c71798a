package dataflows

import (
	"context"

	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

// Repository persists flow maps (tenant-scoped).
type Repository interface {
	Insert(ctx context.Context, scope tenancy.Scope, m *Map) error
	Get(ctx context.Context, scope tenancy.Scope, id int64) (*Map, error)
	// List returns map headers, without flows, most recent first.
	List(ctx context.Context, scope tenancy.Scope, limit int) ([]Map, error)
}
