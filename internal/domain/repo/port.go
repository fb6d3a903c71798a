package repo

import (
	"context"

	"github.com/bryanwahyu/evidence-custody/internal/domain/artifacts"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/search"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

// Set groups the repositories bound to one connection or transaction.
type Set interface {
	Tenants() tenancy.Repository
	Users() tenancy.UserRepository
	Artifacts() artifacts.Repository
	Inspections() inspections.Repository
	Evidence() inspections.EvidenceRepository
	Search() search.Repository
	Audit() audit.Repository
	DataFlows() dataflows.Repository
}

// UnitOfWork is a Set bound to the database plus transactions. fn runs in
// a single transaction that commits only when fn returns nil.
type UnitOfWork interface {
	Set
	Transact(ctx context.Context, fn func(tx Set) error) error
	Ping(ctx context.Context) error
}
