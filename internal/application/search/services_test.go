package search_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/application/inspections"
	appsearch "github.com/bryanwahyu/evidence-custody/internal/application/search"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	domain "github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/search"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/testsupport"
)

func TestEntryProjection(t *testing.T) {
	svc := &appsearch.Service{ExcerptChars: 5}
	e := svc.Entry(appsearch.ProjectCommand{
		InspectionID: 7,
		Filename:     "Scan.PDF",
		Text:         "héllo wörld again",
		Findings:     domain.Findings{PatternsFound: map[string]int{"SSN": 2, "Email": 1}, RiskLevel: domain.RiskMedium},
		StoreExcerpt: true,
	})
	assert.Equal(t, "héllo", e.SafeExcerpt)
	assert.Equal(t, "pdf", e.FileExt)
	assert.Equal(t, 17, e.CharCount)
	assert.Equal(t, 3, e.WordCount)
	assert.Equal(t, 3, e.PatternsTotal)
	assert.Equal(t, "MEDIUM", e.RiskLevel)
	assert.NotNil(t, e.Categories)

	e = svc.Entry(appsearch.ProjectCommand{Filename: "noext", Text: "secret"})
	assert.Empty(t, e.SafeExcerpt)
	assert.Empty(t, e.FileExt)
}

func TestFileExt(t *testing.T) {
	assert.Equal(t, "gz", appsearch.FileExt("a.tar.GZ"))
	assert.Equal(t, "", appsearch.FileExt("README"))
	assert.Equal(t, "", appsearch.FileExt("trailing."))
}

func TestQueryIsAuditedAndScoped(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	acme := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "acme"))
	globex := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "globex"))
	insp := f.Inspector()

	_, err := insp.InspectText(ctx, acme, inspections.InspectTextCommand{Name: "payroll.txt", Text: "SSN 123-45-6789"})
	require.NoError(t, err)
	_, err = insp.InspectText(ctx, globex, inspections.InspectTextCommand{Name: "payroll.txt", Text: "clean"})
	require.NoError(t, err)

	viewer := f.Session(t, tenancy.RoleViewer, f.Tenant(t, "acme"))
	hits, err := f.Search().Query(ctx, viewer, search.Query{Text: "PAYROLL"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, acme.TenantID(), hits[0].TenantID)
	assert.Equal(t, "MEDIUM", hits[0].RiskLevel)

	hits, err = f.Search().Query(ctx, viewer, search.Query{Risk: "low"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	events, err := f.Store.Audit().List(ctx, acme.Scope, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, audit.EventSearch, e.EventType)
	}
	assert.Equal(t, "PAYROLL", events[0].Payload["q"])
	assert.EqualValues(t, 1, events[0].Payload["results"])

	_, err = f.Search().Query(ctx, tenancy.Session{}, search.Query{})
	assert.ErrorIs(t, err, custody.ErrValidation)
}

func TestProjectRequiresInspect(t *testing.T) {
	f := testsupport.New(t)
	viewer := f.Session(t, tenancy.RoleViewer, f.Tenant(t, "acme"))
	_, err := f.Search().Project(context.Background(), f.Store, viewer, appsearch.ProjectCommand{Text: strings.Repeat("x", 3)})
	assert.ErrorIs(t, err, custody.ErrPermissionDenied)
}
