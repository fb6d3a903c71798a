package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	appartifacts "github.com/bryanwahyu/evidence-custody/internal/application/artifacts"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	appdataflows "github.com/bryanwahyu/evidence-custody/internal/application/dataflows"
	appinspections "github.com/bryanwahyu/evidence-custody/internal/application/inspections"
	appintegrity "github.com/bryanwahyu/evidence-custody/internal/application/integrity"
	appmanifest "github.com/bryanwahyu/evidence-custody/internal/application/manifest"
	appsearch "github.com/bryanwahyu/evidence-custody/internal/application/search"
	apptenancy "github.com/bryanwahyu/evidence-custody/internal/application/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/metrics"
	"github.com/bryanwahyu/evidence-custody/internal/middleware"
)

const (
	DefaultMaxUpload = 64 << 20
	realm            = "evidence-custody"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Tenancy     *apptenancy.Service
	Artifacts   *appartifacts.Service
	Inspections *appinspections.Service
	Search      *appsearch.Service
	Integrity   *appintegrity.Service
	Manifest    *appmanifest.Service
	Audit       *appaudit.Service
	DataFlows   *appdataflows.Service
}

type Options struct {
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
	// MaxUpload bounds multipart uploads; zero means DefaultMaxUpload.
	MaxUpload int64
	// IncludeObjects is the export default when the query does not say.
	IncludeObjects bool
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Health         map[string]middleware.HealthChecker
	Log            *slog.Logger
}

type Router struct {
	svc  Services
	opts Options
	log  *slog.Logger
}

func NewRouter(svc Services, opts Options) http.Handler {
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	r := &Router{svc: svc, opts: opts, log: log}
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.Logging(log))
	mux.Use(middleware.Metrics(opts.Metrics))
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader, "X-Bundle-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Method(http.MethodGet, "/metrics", middleware.MetricsHandler(opts.Gatherer))

	mux.Route("/v1", func(rt chi.Router) {
		// limit before auth so password guessing is throttled per client
		rt.Use(middleware.RateLimit(opts.RateLimit, opts.RateBurst, opts.Metrics))
		rt.Use(middleware.BasicAuth(svc.Tenancy, realm))

		rt.Get("/me", r.wrap(r.handleMe))
		rt.Get("/tenants", r.wrap(r.handleListTenants))
		rt.Post("/tenants", r.wrap(r.handleCreateTenant))
		rt.Get("/users", r.wrap(r.handleListUsers))
		rt.Post("/users", r.wrap(r.handleCreateUser))
		rt.Get("/audit", r.wrap(r.handleGlobalAudit))

		rt.Route("/tenants/{tenant}", func(tr chi.Router) {
			tr.Put("/active", r.wrap(r.handleSetTenantActive))
			tr.Post("/inspections/file", r.wrap(r.handleInspectFile))
			tr.Post("/inspections/text", r.wrap(r.handleInspectText))
			tr.Get("/inspections", r.wrap(r.handleLatest))
			tr.Get("/inspections/compare", r.wrap(r.handleCompare))
			tr.Get("/inspections/{id}", r.wrap(r.handleGetInspection))
			tr.Get("/inspections/{id}/evidence", r.wrap(r.handleEvidence))
			tr.Get("/evidence/{id}/content", r.wrap(r.handleEvidenceContent))
			tr.Get("/artifacts", r.wrap(r.handleArtifacts))
			tr.Get("/artifacts/{id}/versions", r.wrap(r.handleVersions))
			tr.Get("/versions/{id}", r.wrap(r.handleGetVersion))
			tr.Get("/versions/{id}/content", r.wrap(r.handleVersionContent))
			tr.Get("/search", r.wrap(r.handleSearch))
			tr.Post("/verify", r.wrap(r.handleVerify))
			tr.Get("/export", r.wrap(r.handleExport))
			tr.Get("/audit", r.wrap(r.handleAudit))
			tr.Post("/dataflows", r.wrap(r.handleSaveDataFlow))
			tr.Get("/dataflows", r.wrap(r.handleDataFlows))
			tr.Get("/dataflows/{id}", r.wrap(r.handleGetDataFlow))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, custody.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, custody.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, custody.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, custody.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, custody.ErrIntegrityMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, custody.ErrAnalyzer):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			r.log.Error("request failed", "path", req.URL.Path,
				"request_id", middleware.RequestIDFromContext(req.Context()), "err", err)
			msg = "internal error"
		}
		http.Error(w, msg, status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func actor(req *http.Request) (tenancy.Actor, error) {
	a, ok := middleware.ActorFromContext(req.Context())
	if !ok {
		return tenancy.Actor{}, custody.Denied("unauthenticated")
	}
	return a, nil
}

// session opens the request session for the {tenant} path segment.
func (r *Router) session(req *http.Request) (tenancy.Session, error) {
	a, err := actor(req)
	if err != nil {
		return tenancy.Session{}, err
	}
	return r.svc.Tenancy.OpenSession(req.Context(), a, chi.URLParam(req, "tenant"))
}

func pathID(req *http.Request, name string) (int64, error) {
	return middleware.ParseID(name, chi.URLParam(req, name))
}

func queryInt(req *http.Request, name string) int {
	n, _ := strconv.Atoi(req.URL.Query().Get(name))
	return n
}

func queryBool(req *http.Request, name string, def bool) bool {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// parseDay accepts RFC 3339 or a bare date; a bare end date covers the
// whole day.
func parseDay(raw string, end bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, custody.Invalid("invalid date %q", raw)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func writeBlob(w http.ResponseWriter, contentType, filename string, data []byte) error {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(data)
	return err
}

func readAll(f io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, custody.Invalid("upload exceeds %d bytes", limit)
	}
	return data, nil
}
