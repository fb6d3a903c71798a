// Package app wires configuration into the stores and use cases shared by
// the API server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	appartifacts "github.com/bryanwahyu/evidence-custody/internal/application/artifacts"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	appdataflows "github.com/bryanwahyu/evidence-custody/internal/application/dataflows"
	appinspections "github.com/bryanwahyu/evidence-custody/internal/application/inspections"
	appintegrity "github.com/bryanwahyu/evidence-custody/internal/application/integrity"
	appmanifest "github.com/bryanwahyu/evidence-custody/internal/application/manifest"
	appsearch "github.com/bryanwahyu/evidence-custody/internal/application/search"
	apptenancy "github.com/bryanwahyu/evidence-custody/internal/application/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/config"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
	"github.com/bryanwahyu/evidence-custody/internal/infra/ai/openai"
	"github.com/bryanwahyu/evidence-custody/internal/infra/analyzer/patterns"
	"github.com/bryanwahyu/evidence-custody/internal/infra/db/migrations"
	mysqlp "github.com/bryanwahyu/evidence-custody/internal/infra/db/mysql"
	"github.com/bryanwahyu/evidence-custody/internal/infra/db/postgres"
	"github.com/bryanwahyu/evidence-custody/internal/infra/db/sqlite"
	"github.com/bryanwahyu/evidence-custody/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/evidence-custody/internal/infra/httpserver"
	"github.com/bryanwahyu/evidence-custody/internal/infra/metrics"
	"github.com/bryanwahyu/evidence-custody/internal/infra/report"
	"github.com/bryanwahyu/evidence-custody/internal/infra/storage"
	"github.com/bryanwahyu/evidence-custody/internal/middleware"
)

// App holds the wired services.
type App struct {
	Config  *config.Config
	Log     *slog.Logger
	DB      *sql.DB
	Store   *sqlstore.Store
	Objects objects.Store
	Metrics *metrics.Metrics

	Tenancy     *apptenancy.Service
	Artifacts   *appartifacts.Service
	Inspections *appinspections.Service
	Search      *appsearch.Service
	Integrity   *appintegrity.Service
	Manifest    *appmanifest.Service
	AuditLog    *appaudit.Service
	DataFlows   *appdataflows.Service

	gatherer prometheus.Gatherer
}

// Options tune wiring for callers other than the API server.
type Options struct {
	// Registry isolates metrics; nil uses the default registerer.
	Registry *prometheus.Registry
	Clock    application.Clock
	Analyzer inspections.Analyzer
}

// Connect opens the configured database.
func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, sqlstore.Dialect, error) {
	d, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, "", err
	}
	var db *sql.DB
	switch d {
	case sqlstore.MySQL:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
	case sqlstore.Postgres:
		db, err = postgres.Connect(ctx, cfg.PostgresDSN())
	default:
		db, err = sqlite.Connect(ctx, cfg.Database.Path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s connect: %w", d, err)
	}
	return db, d, nil
}

// New connects, migrates and wires every service.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	db, d, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db, d, log); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{Config: cfg, Log: log, DB: db, Store: sqlstore.New(db, d)}
	if opts.Registry != nil {
		a.Metrics = metrics.NewWithRegistry(opts.Registry)
		a.gatherer = opts.Registry
	} else {
		a.Metrics = metrics.New()
		a.gatherer = prometheus.DefaultGatherer
	}

	if a.Objects, err = newObjectStore(ctx, cfg, a.Metrics); err != nil {
		db.Close()
		return nil, err
	}

	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = newAnalyzer(cfg)
	}
	clock := opts.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}
	a.wire(analyzer, clock)
	return a, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (objects.Store, error) {
	if cfg.Storage.Backend == "minio" {
		return storage.NewMinIO(ctx, storage.MinIOOptions{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.BucketName,
			Prefix:    cfg.Minio.Prefix,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
		}, m)
	}
	return storage.NewFilesystem(cfg.Storage.Root, m)
}

func newAnalyzer(cfg *config.Config) inspections.Analyzer {
	if cfg.Analyzer.Provider == "openai" {
		return openai.NewClient(cfg.Analyzer.APIKey, cfg.Analyzer.Model, patterns.Extractor{})
	}
	return patterns.New()
}

func (a *App) wire(analyzer inspections.Analyzer, clock application.Clock) {
	cfg := a.Config
	rec := &appaudit.Recorder{Clock: clock, Metrics: a.Metrics}

	a.Tenancy = &apptenancy.Service{Store: a.Store, Audit: rec, Clock: clock, Log: a.Log}
	a.AuditLog = &appaudit.Service{Store: a.Store, Log: a.Log}
	a.Artifacts = &appartifacts.Service{
		Store:   a.Store,
		Objects: a.Objects,
		Audit:   rec,
		Clock:   clock,
		Metrics: a.Metrics,
		Log:     a.Log,
	}
	a.Search = &appsearch.Service{
		Store:        a.Store,
		Audit:        rec,
		Clock:        clock,
		Metrics:      a.Metrics,
		ExcerptChars: cfg.Evidence.ExcerptChars,
		Limit:        cfg.Evidence.SearchLimit,
	}
	a.Inspections = &appinspections.Service{
		Store:     a.Store,
		Objects:   a.Objects,
		Artifacts: a.Artifacts,
		Search:    a.Search,
		Analyzer:  analyzer,
		Renderer:  report.HTML{},
		Extractor: patterns.Extractor{},
		Audit:     rec,
		Clock:     clock,
		Metrics:   a.Metrics,
		Log:       a.Log,
		Options: appinspections.Options{
			AutoSaveEvidence: cfg.Evidence.AutoSaveEvidence,
			IndexEnabled:     cfg.Evidence.IndexEnabled,
			StoreExcerpt:     cfg.Evidence.StoreExcerpt,
		},
	}
	a.Integrity = &appintegrity.Service{
		Store:   a.Store,
		Objects: a.Objects,
		Audit:   rec,
		Clock:   clock,
		Metrics: a.Metrics,
		Log:     a.Log,
	}
	a.Manifest = &appmanifest.Service{
		Store:   a.Store,
		Objects: a.Objects,
		Audit:   rec,
		Clock:   clock,
		Metrics: a.Metrics,
		Log:     a.Log,
	}
	a.DataFlows = &appdataflows.Service{Store: a.Store, Audit: rec, Clock: clock, Log: a.Log}
}

// Bootstrap runs first-start provisioning from the configuration.
func (a *App) Bootstrap(ctx context.Context) (apptenancy.BootstrapResult, error) {
	return a.Tenancy.Bootstrap(ctx, apptenancy.BootstrapCommand{
		AdminUsername: a.Config.Evidence.BootstrapAdminUsername,
		AdminPassword: a.Config.Evidence.BootstrapAdminPassword,
		DefaultTenant: a.Config.Evidence.DefaultTenant,
	})
}

// Router builds the HTTP handler.
func (a *App) Router() http.Handler {
	health := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: a.Store},
	}
	if fs, ok := a.Objects.(*storage.Filesystem); ok {
		health["objects"] = middleware.CheckFunc(func(context.Context) error {
			_, err := os.Stat(fs.Root())
			return err
		})
	}
	return httpserver.NewRouter(httpserver.Services{
		Tenancy:     a.Tenancy,
		Artifacts:   a.Artifacts,
		Inspections: a.Inspections,
		Search:      a.Search,
		Integrity:   a.Integrity,
		Manifest:    a.Manifest,
		Audit:       a.AuditLog,
		DataFlows:   a.DataFlows,
	}, httpserver.Options{
		CORSOrigins:    a.Config.Server.CORSOrigins,
		RateLimit:      a.Config.Server.RateLimit,
		RateBurst:      a.Config.Server.RateBurst,
		IncludeObjects: a.Config.Evidence.IncludeObjectsInExport,
		Metrics:        a.Metrics,
		Gatherer:       a.gatherer,
		Health:         health,
		Log:            a.Log,
	})
}

func (a *App) Close() error {
	return a.DB.Close()
}
