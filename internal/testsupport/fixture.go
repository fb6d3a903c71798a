// Package testsupport builds real, throwaway stores for service and
// repository tests: an embedded SQLite database migrated with the production
// migrations and a filesystem object store, both under t.TempDir().
package testsupport

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/db/migrations"
	"github.com/bryanwahyu/evidence-custody/internal/infra/db/sqlite"
	"github.com/bryanwahyu/evidence-custody/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/evidence-custody/internal/infra/logging"
	"github.com/bryanwahyu/evidence-custody/internal/infra/metrics"
	"github.com/bryanwahyu/evidence-custody/internal/infra/storage"
)

// Epoch is the first instant handed out by fixture clocks.
var Epoch = time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)

// placeholderHash is stored for fixture users that never log in.
const placeholderHash = "pbkdf2_sha256$1$00$00"

type Fixture struct {
	Store    *sqlstore.Store
	Objects  *storage.Filesystem
	Clock    *application.StepClock
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Audit    *appaudit.Recorder
	Dir      string
}

// New migrates a fresh database and object root for t.
func New(t testing.TB) *Fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.Connect(context.Background(), filepath.Join(dir, "evidence.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(db, sqlstore.SQLite, logging.Discard()))

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	objs, err := storage.NewFilesystem(filepath.Join(dir, "repo"), m)
	require.NoError(t, err)

	clock := &application.StepClock{Start: Epoch, Step: time.Second}
	return &Fixture{
		Store:    sqlstore.New(db, sqlstore.SQLite),
		Objects:  objs,
		Clock:    clock,
		Registry: reg,
		Metrics:  m,
		Audit:    &appaudit.Recorder{Clock: clock, Metrics: m},
		Dir:      dir,
	}
}

// Tenant creates (or returns) an active tenant.
func (f *Fixture) Tenant(t testing.TB, name string) tenancy.Tenant {
	t.Helper()
	tn, _, err := f.Store.Tenants().CreateIfAbsent(context.Background(), name, f.Clock.Now())
	require.NoError(t, err)
	return tn
}

// User stores a user that cannot log in.
func (f *Fixture) User(t testing.TB, username string, role tenancy.Role, tenantID *int64) tenancy.User {
	t.Helper()
	u := tenancy.User{
		TenantID:     tenantID,
		Username:     username,
		PasswordHash: placeholderHash,
		Role:         role,
		Active:       true,
		CreatedAt:    f.Clock.Now(),
	}
	created, err := f.Store.Users().CreateIfAbsent(context.Background(), &u)
	require.NoError(t, err)
	if !created {
		stored, err := f.Store.Users().GetByUsername(context.Background(), username)
		require.NoError(t, err)
		return *stored
	}
	return u
}

// Session returns a session in tenant for a user of role homed there.
func (f *Fixture) Session(t testing.TB, role tenancy.Role, tenant tenancy.Tenant) tenancy.Session {
	t.Helper()
	id := tenant.ID
	u := f.User(t, string(role)+"@"+strings.ToLower(tenant.Name), role, &id)
	sess, err := tenancy.NewSession(u.Actor(), tenant.ID)
	require.NoError(t, err)
	return sess
}
