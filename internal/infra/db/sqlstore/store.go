package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/evidence-custody/internal/domain/artifacts"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	"github.com/bryanwahyu/evidence-custody/internal/domain/search"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

// Store is the SQL-backed unit of work. Outside Transact its repositories
// run directly on the pool.
type Store struct {
	set
	db *sql.DB
}

func New(db *sql.DB, d Dialect) *Store {
	return &Store{set: set{base{q: db, d: d}}, db: db}
}

// DB exposes the pool for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL flavour of the store.
func (s *Store) Dialect() Dialect { return s.d }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Transact runs fn in one transaction. Callers must not touch the Store's
// own repositories from inside fn: SQLite runs with a single connection.
func (s *Store) Transact(ctx context.Context, fn func(tx repo.Set) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(set{base{q: tx, d: s.d, inTx: true}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type set struct{ base }

func (s set) Tenants() tenancy.Repository { return &TenantRepository{s.base} }
func (s set) Users() tenancy.UserRepository { return &UserRepository{s.base} }
func (s set) Artifacts() artifacts.Repository { return &ArtifactRepository{s.base} }
func (s set) Inspections() inspections.Repository { return &InspectionRepository{s.base} }
func (s set) Evidence() inspections.EvidenceRepository { return &EvidenceRepository{s.base} }
func (s set) Search() search.Repository { return &SearchRepository{s.base} }
func (s set) Audit() audit.Repository { return &AuditRepository{s.base} }
func (s set) DataFlows() dataflows.Repository { return &DataFlowRepository{s.base} }

var _ repo.UnitOfWork = (*Store)(nil)
