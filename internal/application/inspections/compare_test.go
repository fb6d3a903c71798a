package inspections_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/application/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	domain "github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/testsupport"
)

func TestCompare(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	svc := newService(f)
	sess := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "acme"))

	left, err := svc.InspectFile(ctx, sess, inspections.InspectFileCommand{Filename: "memo.txt", Data: []byte("SSN 123-45-6789")})
	require.NoError(t, err)
	right, err := svc.InspectFile(ctx, sess, inspections.InspectFileCommand{
		Filename: "memo.txt", Data: []byte("SSN 123-45-6789 and 987-65-4321, mail a@b.io"),
	})
	require.NoError(t, err)
	manual, err := svc.InspectText(ctx, sess, inspections.InspectTextCommand{Name: "memo.txt", Text: "nothing"})
	require.NoError(t, err)

	cmp, err := svc.Compare(ctx, sess, left.Inspection.ID, right.Inspection.ID)
	require.NoError(t, err)
	assert.False(t, cmp.RiskLevelChanged)
	assert.Equal(t, 2, cmp.RiskScoreDelta)
	assert.False(t, cmp.DetectedChanged)
	assert.Equal(t, []inspections.PatternDelta{
		{Pattern: "Email", Left: 0, Right: 1, Delta: 1},
		{Pattern: "SSN", Left: 1, Right: 2, Delta: 1},
	}, cmp.Patterns)
	assert.Empty(t, cmp.CategoriesOnlyLeft)
	assert.Equal(t, []string{"Email"}, cmp.CategoriesOnlyRight)

	status := map[string]string{}
	for _, e := range cmp.Evidence {
		status[e.Key] = e.Status
	}
	assert.Equal(t, map[string]string{
		domain.KindFindingsJSON: inspections.Different,
		domain.KindReportHTML:   inspections.Different,
		inspections.SourceKey:   inspections.Different,
	}, status)

	cmp, err = svc.Compare(ctx, sess, left.Inspection.ID, manual.Inspection.ID)
	require.NoError(t, err)
	assert.True(t, cmp.RiskLevelChanged)
	assert.True(t, cmp.DetectedChanged)
	for _, e := range cmp.Evidence {
		if e.Key == inspections.SourceKey {
			assert.Equal(t, inspections.LeftOnly, e.Status)
		}
	}

	_, err = svc.Compare(ctx, sess, left.Inspection.ID, left.Inspection.ID)
	assert.ErrorIs(t, err, custody.ErrValidation)
	_, err = svc.Compare(ctx, sess, left.Inspection.ID, 9999)
	assert.ErrorIs(t, err, custody.ErrNotFound)
}

func TestCompareIdenticalRuns(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	svc := newService(f)
	sess := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "acme"))

	a, err := svc.InspectFile(ctx, sess, inspections.InspectFileCommand{Filename: "same.txt", Data: []byte("a@b.io")})
	require.NoError(t, err)
	b, err := svc.InspectFile(ctx, sess, inspections.InspectFileCommand{Filename: "same.txt", Data: []byte("a@b.io")})
	require.NoError(t, err)

	cmp, err := svc.Compare(ctx, sess, a.Inspection.ID, b.Inspection.ID)
	require.NoError(t, err)
	assert.Zero(t, cmp.RiskScoreDelta)
	for _, e := range cmp.Evidence {
		assert.Equal(t, inspections.Match, e.Status, e.Key)
	}
	assert.Equal(t, cmp.Left.SourceSHA256, cmp.Right.SourceSHA256)
}
