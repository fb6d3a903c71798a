package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	domain "github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/metrics"
)

// Recorder appends audit events. Callers pass the repository set of the
// transaction that performs the audited change, so a failed append rolls
// the change back.
type Recorder struct {
	Clock   application.Clock
	Metrics *metrics.Metrics
}

// Entry is one event to append.
type Entry struct {
	TenantID *int64
	UserID   *int64
	Type     domain.EventType
	Payload  map[string]any
}

func (r *Recorder) Append(ctx context.Context, set repo.Set, e Entry) (domain.Event, error) {
	ev := domain.Event{
		TenantID:  e.TenantID,
		UserID:    e.UserID,
		EventType: e.Type,
		Payload:   e.Payload,
		CreatedAt: application.Now(r.Clock),
	}
	if err := set.Audit().Append(ctx, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("audit %s: %w", e.Type, err)
	}
	r.Metrics.AuditAppended(string(e.Type))
	return ev, nil
}

// Session appends an event attributed to the session's user and tenant.
func (r *Recorder) Session(ctx context.Context, set repo.Set, sess tenancy.Session, t domain.EventType, payload map[string]any) error {
	tenantID := sess.TenantID()
	userID := sess.Actor.UserID
	_, err := r.Append(ctx, set, Entry{TenantID: &tenantID, UserID: nonZero(userID), Type: t, Payload: payload})
	return err
}

// Global appends an event that belongs to no tenant.
func (r *Recorder) Global(ctx context.Context, set repo.Set, actor tenancy.Actor, t domain.EventType, payload map[string]any) error {
	_, err := r.Append(ctx, set, Entry{UserID: nonZero(actor.UserID), Type: t, Payload: payload})
	return err
}

func nonZero(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// Service reads the audit trail.
type Service struct {
	Store repo.UnitOfWork
	Log   *slog.Logger
}

// List returns the newest limit events of the session's tenant, oldest first.
func (s *Service) List(ctx context.Context, sess tenancy.Session, limit int) ([]domain.Event, error) {
	if err := sess.Require(tenancy.ActionViewAudit); err != nil {
		return nil, err
	}
	return s.Store.Audit().List(ctx, sess.Scope, limit)
}

// ListGlobal returns tenant-less events (tenant and user management).
func (s *Service) ListGlobal(ctx context.Context, actor tenancy.Actor, limit int) ([]domain.Event, error) {
	if err := actor.Require(tenancy.ActionManageTenants); err != nil {
		return nil, err
	}
	return s.Store.Audit().ListGlobal(ctx, limit)
}
