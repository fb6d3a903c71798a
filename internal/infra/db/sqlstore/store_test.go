package sqlstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/domain/artifacts"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	"github.com/bryanwahyu/evidence-custody/internal/domain/search"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/testsupport"
)

func insertVersion(t *testing.T, f *testsupport.Fixture, sess tenancy.Session, name string, n int, data string) artifacts.Version {
	t.Helper()
	ctx := context.Background()
	var v artifacts.Version
	err := f.Store.Transact(ctx, func(tx repo.Set) error {
		art, err := tx.Artifacts().FindOrCreate(ctx, sess.Scope, name, f.Clock.Now())
		if err != nil {
			return err
		}
		hash := objects.Address([]byte(data))
		v = artifacts.Version{
			ArtifactID:       art.ID,
			Version:          n,
			OriginalFilename: name,
			ContentHash:      hash,
			ObjectPath:       objects.PathFor(hash),
			SizeBytes:        int64(len(data)),
			Mime:             "text/plain",
			CreatedAt:        f.Clock.Now(),
		}
		return tx.Artifacts().InsertVersion(ctx, sess.Scope, &v)
	})
	require.NoError(t, err)
	return v
}

func TestTenantCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)

	first, created, err := f.Store.Tenants().CreateIfAbsent(ctx, " acme ", f.Clock.Now())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "acme", first.Name)
	assert.True(t, first.Active)

	again, created, err := f.Store.Tenants().CreateIfAbsent(ctx, "acme", f.Clock.Now())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = f.Store.Tenants().CreateIfAbsent(ctx, "  ", f.Clock.Now())
	assert.ErrorIs(t, err, custody.ErrValidation)

	require.NoError(t, f.Store.Tenants().SetActive(ctx, first.ID, false))
	got, err := f.Store.Tenants().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = f.Store.Tenants().Get(ctx, 999)
	assert.ErrorIs(t, err, custody.ErrNotFound)
}

func TestUsersAreUniqueByName(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	acme := f.Tenant(t, "acme")

	u := tenancy.User{TenantID: &acme.ID, Username: "ana", PasswordHash: "x", Role: tenancy.RoleAnalyst, Active: true}
	created, err := f.Store.Users().CreateIfAbsent(ctx, &u)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, u.ID)

	dup := tenancy.User{Username: "ana", PasswordHash: "y", Role: tenancy.RoleViewer, Active: true}
	created, err = f.Store.Users().CreateIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)

	n, err := f.Store.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	at := testsupport.Epoch.Add(time.Hour)
	require.NoError(t, f.Store.Users().TouchLogin(ctx, u.ID, at))
	stored, err := f.Store.Users().GetByUsername(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, at.Equal(*stored.LastLoginAt))
	assert.Equal(t, tenancy.RoleAnalyst, stored.Role)

	other := f.Tenant(t, "globex")
	f.User(t, "gus", tenancy.RoleViewer, &other.ID)
	scoped, err := f.Store.Users().List(ctx, &acme.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	all, err := f.Store.Users().List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	acme := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "acme"))
	globex := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "globex"))

	v := insertVersion(t, f, acme, "report.txt", 1, "acme bytes")

	_, err := f.Store.Artifacts().GetVersion(ctx, globex.Scope, v.ID)
	assert.ErrorIs(t, err, custody.ErrNotFound)
	_, err = f.Store.Artifacts().Get(ctx, globex.Scope, v.ArtifactID)
	assert.ErrorIs(t, err, custody.ErrNotFound)

	list, err := f.Store.Artifacts().List(ctx, globex.Scope)
	require.NoError(t, err)
	assert.Empty(t, list)

	byIDs, err := f.Store.Artifacts().VersionsByIDs(ctx, globex.Scope, []int64{v.ID})
	require.NoError(t, err)
	assert.Empty(t, byIDs)

	mine, err := f.Store.Artifacts().GetVersion(ctx, acme.Scope, v.ID)
	require.NoError(t, err)
	assert.Equal(t, acme.TenantID(), mine.TenantID)
	assert.Equal(t, "-", mine.UploadedBy)

	// Same logical name in another tenant is a separate artifact.
	other := insertVersion(t, f, globex, "report.txt", 1, "globex bytes")
	assert.NotEqual(t, v.ArtifactID, other.ArtifactID)
}

func TestQueriesWithoutTenantFail(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)

	_, err := f.Store.Artifacts().List(ctx, tenancy.Scope{})
	assert.ErrorIs(t, err, custody.ErrValidation)
	_, err = f.Store.Inspections().Get(ctx, tenancy.Scope{}, 1)
	assert.ErrorIs(t, err, custody.ErrValidation)
	_, err = f.Store.Search().Find(ctx, tenancy.Scope{}, search.Query{})
	assert.ErrorIs(t, err, custody.ErrValidation)
}

func TestVersionNumbersAreUniquePerArtifact(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	sess := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "acme"))

	v1 := insertVersion(t, f, sess, "plan.docx", 1, "one")
	insertVersion(t, f, sess, "plan.docx", 2, "two")

	dup := v1
	dup.ID = 0
	err := f.Store.Transact(ctx, func(tx repo.Set) error {
		return tx.Artifacts().InsertVersion(ctx, sess.Scope, &dup)
	})
	require.Error(t, err)

	latest, err := f.Store.Artifacts().LatestVersion(ctx, sess.Scope, v1.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	chain, err := f.Store.Artifacts().Versions(ctx, sess.Scope, v1.ArtifactID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, 1, chain[0].Version)
	assert.Equal(t, 2, chain[1].Version)
}

func TestTransactRollsBack(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	sess := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "acme"))
	boom := errors.New("boom")

	err := f.Store.Transact(ctx, func(tx repo.Set) error {
		if _, err := tx.Artifacts().FindOrCreate(ctx, sess.Scope, "ghost.txt", f.Clock.Now()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := f.Store.Artifacts().List(ctx, sess.Scope)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func recordInspection(t *testing.T, f *testsupport.Fixture, sess tenancy.Session, name string, started time.Time) inspections.Inspection {
	t.Helper()
	in := inspections.Inspection{
		RunType:        inspections.RunManual,
		Filename:       name,
		StartedAt:      started,
		FinishedAt:     started,
		PatternsJSON:   `{"SSN":2}`,
		CategoriesJSON: `["SSN"]`,
		SummaryJSON:    `{}`,
		RiskLevel:      inspections.RiskMedium,
	}
	require.NoError(t, f.Store.Inspections().Insert(context.Background(), sess.Scope, &in))
	return in
}

func TestInspectionSelection(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	sess := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "acme"))
	day := testsupport.Epoch

	a := recordInspection(t, f, sess, "a.txt", day)
	b := recordInspection(t, f, sess, "b.txt", day.Add(24*time.Hour))
	c := recordInspection(t, f, sess, "c.txt", day.Add(48*time.Hour))

	recent, err := f.Store.Inspections().Select(ctx, sess.Scope, inspections.Selection{Mode: inspections.SelectMostRecent, Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, c.ID, recent[0].ID)
	assert.Equal(t, b.ID, recent[1].ID)

	ranged, err := f.Store.Inspections().Select(ctx, sess.Scope, inspections.Selection{
		Mode: inspections.SelectDateRange, From: day, To: day.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, b.ID, ranged[0].ID)
	assert.Equal(t, a.ID, ranged[1].ID)

	byID, err := f.Store.Inspections().Select(ctx, sess.Scope, inspections.Selection{Mode: inspections.SelectIDs, IDs: []int64{a.ID, c.ID, 9999}})
	require.NoError(t, err)
	assert.Len(t, byID, 2)

	_, err = f.Store.Inspections().Select(ctx, sess.Scope, inspections.Selection{Mode: "bogus"})
	assert.ErrorIs(t, err, custody.ErrValidation)

	got, err := f.Store.Inspections().Get(ctx, sess.Scope, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ArtifactVersionID)
	assert.Equal(t, 2, got.RiskScore())
	assert.True(t, day.Equal(got.StartedAt))
}

func TestSearchFind(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	sess := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "acme"))

	entries := []search.Entry{
		{Filename: "Payroll_2026.csv", SafeExcerpt: "ssn list", RiskLevel: "HIGH", Categories: []string{"SSN"}},
		{Filename: "memo.txt", SafeExcerpt: "100% routine", RiskLevel: "LOW"},
		{Filename: "notes.md", SafeExcerpt: "Quarterly PAYROLL review", RiskLevel: "MEDIUM"},
	}
	for i := range entries {
		in := recordInspection(t, f, sess, entries[i].Filename, f.Clock.Now())
		entries[i].InspectionID = in.ID
		entries[i].CreatedAt = f.Clock.Now()
		require.NoError(t, f.Store.Search().Insert(ctx, sess.Scope, &entries[i]))
	}

	got, err := f.Store.Search().Find(ctx, sess.Scope, search.Query{Text: "payroll"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "notes.md", got[0].Filename, "newest first")
	assert.Equal(t, "Payroll_2026.csv", got[1].Filename)
	assert.Equal(t, []string{"SSN"}, got[1].Categories)

	got, err = f.Store.Search().Find(ctx, sess.Scope, search.Query{Text: "payroll", Risk: "high"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = f.Store.Search().Find(ctx, sess.Scope, search.Query{Text: "%"})
	require.NoError(t, err)
	require.Len(t, got, 1, "wildcards match literally")
	assert.Equal(t, "memo.txt", got[0].Filename)

	got, err = f.Store.Search().Find(ctx, sess.Scope, search.Query{Text: "_"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Payroll_2026.csv", got[0].Filename)

	got, err = f.Store.Search().Find(ctx, sess.Scope, search.Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearchFindFoldsNonASCII(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	sess := f.Session(t, tenancy.RoleAnalyst, f.Tenant(t, "acme"))

	in := recordInspection(t, f, sess, "ÄRZTE_Überweisung.txt", f.Clock.Now())
	e := search.Entry{InspectionID: in.ID, Filename: "ÄRZTE_Überweisung.txt", SafeExcerpt: "Straße ÉCOLE", CreatedAt: f.Clock.Now()}
	require.NoError(t, f.Store.Search().Insert(ctx, sess.Scope, &e))

	for _, text := range []string{"ärzte", "ÄRZTE", "überweisung", "école", "STRASSE", "straße"} {
		got, err := f.Store.Search().Find(ctx, sess.Scope, search.Query{Text: text})
		require.NoError(t, err)
		want := 1
		if text == "STRASSE" {
			want = 0 // simple case mapping only, no full folding
		}
		assert.Len(t, got, want, text)
	}
	got, err := f.Store.Search().Find(ctx, sess.Scope, search.Query{Text: "ÄRZTE"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ÄRZTE_Überweisung.txt", got[0].Filename, "display columns keep their case")
}

func TestAuditListIsChronological(t *testing.T) {
	ctx := context.Background()
	f := testsupport.New(t)
	acme := f.Tenant(t, "acme")
	sess := f.Session(t, tenancy.RoleAnalyst, acme)

	for _, et := range []audit.EventType{audit.EventUpload, audit.EventVersionCreated, audit.EventInspectionRun} {
		e := audit.Event{TenantID: &acme.ID, UserID: &sess.Actor.UserID, EventType: et,
			Payload: map[string]any{"n": string(et)}, CreatedAt: f.Clock.Now()}
		require.NoError(t, f.Store.Audit().Append(ctx, &e))
	}
	global := audit.Event{EventType: audit.EventTenantCreated, CreatedAt: f.Clock.Now()}
	require.NoError(t, f.Store.Audit().Append(ctx, &global))

	events, err := f.Store.Audit().List(ctx, sess.Scope, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventVersionCreated, events[0].EventType)
	assert.Equal(t, audit.EventInspectionRun, events[1].EventType)
	assert.Equal(t, "inspection_run", events[1].Payload["n"])

	globals, err := f.Store.Audit().ListGlobal(ctx, 0)
	require.NoError(t, err)
	require.Len(t, globals, 1)
	assert.Nil(t, globals[0].TenantID)
	assert.Empty(t, globals[0].Payload)
}
