package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	domain "github.com/bryanwahyu/evidence-custody/internal/domain/search"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/metrics"
)

const (
	DefaultExcerptChars = 1200
	DefaultLimit        = 400
)

// Service projects inspections into the search index and queries it.
type Service struct {
	Store   repo.UnitOfWork
	Audit   *appaudit.Recorder
	Clock   application.Clock
	Metrics *metrics.Metrics

	// ExcerptChars bounds stored excerpts; zero means DefaultExcerptChars.
	ExcerptChars int
	// Limit caps results when a query names none; zero means DefaultLimit.
	Limit int
}

// ProjectCommand carries one inspection's searchable projection.
type ProjectCommand struct {
	InspectionID      int64
	ArtifactVersionID *int64
	Filename          string
	Text              string
	Findings          inspections.Findings
	StoreExcerpt      bool
}

// Entry builds the index row for cmd without storing it.
func (s *Service) Entry(cmd ProjectCommand) domain.Entry {
	limit := s.ExcerptChars
	if limit <= 0 {
		limit = DefaultExcerptChars
	}
	excerpt := ""
	if cmd.StoreExcerpt {
		excerpt = truncateRunes(cmd.Text, limit)
	}
	cats := cmd.Findings.CUICategories
	if cats == nil {
		cats = []string{}
	}
	return domain.Entry{
		InspectionID:      cmd.InspectionID,
		ArtifactVersionID: cmd.ArtifactVersionID,
		Filename:          cmd.Filename,
		FileExt:           FileExt(cmd.Filename),
		SafeExcerpt:       excerpt,
		CharCount:         utf8.RuneCountInString(cmd.Text),
		WordCount:         len(strings.Fields(cmd.Text)),
		PatternsTotal:     cmd.Findings.PatternsTotal(),
		Categories:        cats,
		RiskLevel:         string(cmd.Findings.RiskLevel),
		CreatedAt:         application.Now(s.Clock),
	}
}

// Project stores the index entry. It runs inside the caller's transaction.
func (s *Service) Project(ctx context.Context, tx repo.Set, sess tenancy.Session, cmd ProjectCommand) (domain.Entry, error) {
	if err := sess.Require(tenancy.ActionInspect); err != nil {
		return domain.Entry{}, err
	}
	e := s.Entry(cmd)
	if err := tx.Search().Insert(ctx, sess.Scope, &e); err != nil {
		return domain.Entry{}, fmt.Errorf("indexing inspection %d: %w", cmd.InspectionID, err)
	}
	return e, nil
}

// Query runs a tenant-scoped lookup. Every query is audited.
func (s *Service) Query(ctx context.Context, sess tenancy.Session, q domain.Query) ([]domain.Entry, error) {
	if err := sess.Require(tenancy.ActionSearch); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = s.Limit
		if q.Limit <= 0 {
			q.Limit = DefaultLimit
		}
	}
	var out []domain.Entry
	err := s.Store.Transact(ctx, func(tx repo.Set) error {
		var err error
		if out, err = tx.Search().Find(ctx, sess.Scope, q); err != nil {
			return err
		}
		return s.Audit.Session(ctx, tx, sess, audit.EventSearch, map[string]any{
			"q":       q.Text,
			"risk":    q.Risk,
			"results": len(out),
		})
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.Searched()
	return out, nil
}

// FileExt is the lower-cased text after the last dot, or "".
func FileExt(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
