package tenancy

import (
	"context"
	"time"
)

// Repository persists tenants. Tenants are global rows; access to them is
// decided by the capability table, not by a tenant scope.
type Repository interface {
	// CreateIfAbsent inserts the tenant unless the name exists and returns
	// the stored row; created is false when it already existed.
	CreateIfAbsent(ctx context.Context, name string, now time.Time) (t Tenant, created bool, err error)
	Get(ctx context.Context, id int64) (*Tenant, error)
	GetByName(ctx context.Context, name string) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// UserRepository persists users.
type UserRepository interface {
	Count(ctx context.Context) (int, error)
	// CreateIfAbsent inserts u unless the username exists; u.ID is set
	// when created.
	CreateIfAbsent(ctx context.Context, u *User) (created bool, err error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// List returns all users when tenantID is nil, otherwise the tenant's.
	List(ctx context.Context, tenantID *int64) ([]User, error)
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}
