package audit

import (
	"context"

	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

// Repository is append-only: there is deliberately no update or delete.
type Repository interface {
	// Append stores e and sets e.ID.
	Append(ctx context.Context, e *Event) error
	// List returns the tenant's events ordered by created_at, id.
	List(ctx context.Context, scope tenancy.Scope, limit int) ([]Event, error)
	// ListGlobal returns events that belong to no tenant.
	ListGlobal(ctx context.Context, limit int) ([]Event, error)
}
