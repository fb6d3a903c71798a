package integrity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/metrics"
)

// Tables named in problem rows.
const (
	TableArtifactVersions = "artifact_versions"
	TableEvidenceFiles    = "evidence_files"
)

// Problem is one stored reference whose object does not match its record.
// ActualHash is empty when the object could not be read; Error says why.
type Problem struct {
	Table        string `json:"table"`
	RowID        int64  `json:"row_id"`
	Name         string `json:"name"`
	ObjectPath   string `json:"object_path"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	Error        string `json:"error,omitempty"`
}

type Report struct {
	TenantID   int64     `json:"tenant_id"`
	Checked    int       `json:"checked"`
	Problems   []Problem `json:"problems"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// OK reports whether no problems were found.
func (r Report) OK() bool { return len(r.Problems) == 0 }

// Service verifies every stored reference of a tenant. It never repairs.
type Service struct {
	Store   repo.UnitOfWork
	Objects objects.Store
	Audit   *appaudit.Recorder
	Clock   application.Clock
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

func (s *Service) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

type reference struct {
	table, name, path, hash string
	id                      int64
}

// VerifyTenant checks all artifact versions and evidence files. Problems
// are collected; only a cancelled context or an unreadable database stops
// the run.
func (s *Service) VerifyTenant(ctx context.Context, sess tenancy.Session) (Report, error) {
	if err := sess.Require(tenancy.ActionVerify); err != nil {
		return Report{}, err
	}
	rep := Report{TenantID: sess.TenantID(), Problems: []Problem{}, StartedAt: application.Now(s.Clock)}

	versions, err := s.Store.Artifacts().AllVersions(ctx, sess.Scope)
	if err != nil {
		return Report{}, err
	}
	evidence, err := s.Store.Evidence().All(ctx, sess.Scope)
	if err != nil {
		return Report{}, err
	}
	refs := make([]reference, 0, len(versions)+len(evidence))
	for _, v := range versions {
		refs = append(refs, reference{TableArtifactVersions, v.OriginalFilename, v.ObjectPath, v.ContentHash, v.ID})
	}
	for _, e := range evidence {
		refs = append(refs, reference{TableEvidenceFiles, e.Filename, e.ObjectPath, e.ContentHash, e.ID})
	}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		rep.Checked++
		ok, actual, err := s.Objects.Verify(ctx, ref.path, ref.hash)
		if err == nil && ok {
			continue
		}
		p := Problem{
			Table:        ref.table,
			RowID:        ref.id,
			Name:         ref.name,
			ObjectPath:   ref.path,
			ExpectedHash: ref.hash,
			ActualHash:   actual,
		}
		switch {
		case err == nil:
			p.Error = custody.ErrIntegrityMismatch.Error()
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return Report{}, err
		default:
			p.Error = err.Error()
		}
		s.log().Warn("integrity problem",
			"tenant_id", rep.TenantID, "table", p.Table, "row_id", p.RowID,
			"expected", p.ExpectedHash, "actual", p.ActualHash, "err", p.Error)
		rep.Problems = append(rep.Problems, p)
	}
	rep.FinishedAt = application.Now(s.Clock)

	err = s.Store.Transact(ctx, func(tx repo.Set) error {
		return s.Audit.Session(ctx, tx, sess, audit.EventVerifyRun, map[string]any{
			"checked":  rep.Checked,
			"problems": len(rep.Problems),
		})
	})
	if err != nil {
		return Report{}, err
	}
	s.Metrics.IntegrityChecked(len(rep.Problems))
	return rep, nil
}
