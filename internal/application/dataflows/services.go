package dataflows

import (
	"context"
	"log/slog"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	domain "github.com/bryanwahyu/evidence-custody/internal/domain/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

const DefaultListLimit = 100

// Service saves and loads a tenant's data flow maps.
type Service struct {
	Store repo.UnitOfWork
	Audit *appaudit.Recorder
	Clock application.Clock
	Log   *slog.Logger
}

func (s *Service) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

type SaveCommand struct {
	Name  string
	Flows []domain.Flow
}

// Save stores a new map. Maps are never updated; saving again under the
// same name adds another map.
func (s *Service) Save(ctx context.Context, sess tenancy.Session, cmd SaveCommand) (domain.Map, error) {
	if err := sess.Require(tenancy.ActionInspect); err != nil {
		return domain.Map{}, err
	}
	m := domain.Map{
		Name:      cmd.Name,
		Flows:     cmd.Flows,
		CreatedAt: application.Now(s.Clock),
		CreatedBy: sess.Actor.Username,
	}
	if err := m.Validate(); err != nil {
		return domain.Map{}, err
	}
	err := s.Store.Transact(ctx, func(tx repo.Set) error {
		if err := tx.DataFlows().Insert(ctx, sess.Scope, &m); err != nil {
			return err
		}
		return s.Audit.Session(ctx, tx, sess, audit.EventDataFlowSaved, map[string]any{
			"flow_id": m.ID,
			"name":    m.Name,
			"count":   len(m.Flows),
		})
	})
	if err != nil {
		return domain.Map{}, err
	}
	s.log().Info("data flow map saved", "tenant_id", m.TenantID, "flow_id", m.ID, "flows", len(m.Flows))
	return m, nil
}

// List returns map headers, most recent first.
func (s *Service) List(ctx context.Context, sess tenancy.Session, limit int) ([]domain.Map, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.Store.DataFlows().List(ctx, sess.Scope, limit)
}

// Load returns one map with its flows and audits the read.
func (s *Service) Load(ctx context.Context, sess tenancy.Session, id int64) (domain.Map, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return domain.Map{}, err
	}
	var m *domain.Map
	err := s.Store.Transact(ctx, func(tx repo.Set) error {
		var err error
		if m, err = tx.DataFlows().Get(ctx, sess.Scope, id); err != nil {
			return err
		}
		return s.Audit.Session(ctx, tx, sess, audit.EventDataFlowLoaded, map[string]any{"flow_id": id})
	})
	if err != nil {
		return domain.Map{}, err
	}
	return *m, nil
}
