package httpserver

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	appdataflows "github.com/bryanwahyu/evidence-custody/internal/application/dataflows"
	appinspections "github.com/bryanwahyu/evidence-custody/internal/application/inspections"
	appmanifest "github.com/bryanwahyu/evidence-custody/internal/application/manifest"
	apptenancy "github.com/bryanwahyu/evidence-custody/internal/application/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/search"
	"github.com/bryanwahyu/evidence-custody/internal/middleware"
)

// GET /v1/me
func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) error {
	a, err := actor(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// GET /v1/tenants
func (r *Router) handleListTenants(w http.ResponseWriter, req *http.Request) error {
	a, err := actor(req)
	if err != nil {
		return err
	}
	list, err := r.svc.Tenancy.ListTenants(req.Context(), a)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/tenants {"name": "..."}
func (r *Router) handleCreateTenant(w http.ResponseWriter, req *http.Request) error {
	a, err := actor(req)
	if err != nil {
		return err
	}
	var body struct {
		Name string `json:"name" validate:"required,max=128"`
	}
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	t, created, err := r.svc.Tenancy.CreateTenant(req.Context(), a, middleware.SanitizeString(body.Name))
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return writeJSON(w, status, map[string]any{"tenant": t, "created": created})
}

// PUT /v1/tenants/{tenant}/active {"active": false}
func (r *Router) handleSetTenantActive(w http.ResponseWriter, req *http.Request) error {
	a, err := actor(req)
	if err != nil {
		return err
	}
	var body struct {
		Active *bool `json:"active" validate:"required"`
	}
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	t, err := r.svc.Tenancy.ResolveTenant(req.Context(), chi.URLParam(req, "tenant"))
	if err != nil {
		return err
	}
	if err := r.svc.Tenancy.SetTenantActive(req.Context(), a, t.ID, *body.Active); err != nil {
		return err
	}
	t.Active = *body.Active
	return writeJSON(w, http.StatusOK, t)
}

// GET /v1/users
func (r *Router) handleListUsers(w http.ResponseWriter, req *http.Request) error {
	a, err := actor(req)
	if err != nil {
		return err
	}
	list, err := r.svc.Tenancy.ListUsers(req.Context(), a)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/users
func (r *Router) handleCreateUser(w http.ResponseWriter, req *http.Request) error {
	a, err := actor(req)
	if err != nil {
		return err
	}
	var body apptenancy.CreateUserCommand
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	body.Username = middleware.SanitizeString(body.Username)
	u, err := r.svc.Tenancy.CreateUser(req.Context(), a, body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, u)
}

// GET /v1/audit?limit=200
func (r *Router) handleGlobalAudit(w http.ResponseWriter, req *http.Request) error {
	a, err := actor(req)
	if err != nil {
		return err
	}
	list, err := r.svc.Audit.ListGlobal(req.Context(), a, middleware.ValidateLimit(queryInt(req, "limit"), 200, 5000))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/tenants/{tenant}/inspections/file (multipart, one or more "file" parts)
func (r *Router) handleInspectFile(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUpload+1<<20)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		return custody.Invalid("multipart form: %v", err)
	}
	defer req.MultipartForm.RemoveAll()

	files := req.MultipartForm.File["file"]
	if len(files) == 0 {
		return custody.Invalid("no file part")
	}
	outcomes := make([]appinspections.Outcome, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		data, err := readAll(f, r.opts.MaxUpload)
		f.Close()
		if err != nil {
			return err
		}
		out, err := r.svc.Inspections.InspectFile(req.Context(), sess, appinspections.InspectFileCommand{
			Filename:   fh.Filename,
			Data:       data,
			Mime:       fh.Header.Get("Content-Type"),
			UploadedBy: sess.Actor.Username,
		})
		if err != nil {
			return err
		}
		outcomes = append(outcomes, out)
	}
	return writeJSON(w, http.StatusCreated, outcomes)
}

// POST /v1/tenants/{tenant}/inspections/text {"name": "...", "text": "..."}
func (r *Router) handleInspectText(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	var body struct {
		Name string `json:"name" validate:"max=255"`
		Text string `json:"text" validate:"required"`
	}
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	out, err := r.svc.Inspections.InspectText(req.Context(), sess, appinspections.InspectTextCommand{
		Name: middleware.SanitizeString(body.Name),
		Text: body.Text,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, out)
}

// GET /v1/tenants/{tenant}/inspections?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	list, err := r.svc.Inspections.Latest(req.Context(), sess, middleware.ValidateLimit(queryInt(req, "limit"), 20, 500))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/tenants/{tenant}/inspections/{id}
func (r *Router) handleGetInspection(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	in, err := r.svc.Inspections.Get(req.Context(), sess, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, in)
}

// GET /v1/tenants/{tenant}/inspections/{id}/evidence
func (r *Router) handleEvidence(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	list, err := r.svc.Inspections.Evidence(req.Context(), sess, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/tenants/{tenant}/inspections/compare?left=1&right=2
func (r *Router) handleCompare(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	left, err := middleware.ParseID("left", req.URL.Query().Get("left"))
	if err != nil {
		return err
	}
	right, err := middleware.ParseID("right", req.URL.Query().Get("right"))
	if err != nil {
		return err
	}
	cmp, err := r.svc.Inspections.Compare(req.Context(), sess, left, right)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, cmp)
}

// GET /v1/tenants/{tenant}/evidence/{id}/content
func (r *Router) handleEvidenceContent(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	data, e, err := r.svc.Inspections.ReadEvidence(req.Context(), sess, id)
	if err != nil {
		return err
	}
	w.Header().Set("X-Content-SHA256", e.ContentHash)
	return writeBlob(w, contentTypeFor(e.Filename), e.Filename, data)
}

// GET /v1/tenants/{tenant}/artifacts
func (r *Router) handleArtifacts(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	list, err := r.svc.Artifacts.List(req.Context(), sess)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/tenants/{tenant}/artifacts/{id}/versions
func (r *Router) handleVersions(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	list, err := r.svc.Artifacts.Versions(req.Context(), sess, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/tenants/{tenant}/versions/{id}
func (r *Router) handleGetVersion(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	v, err := r.svc.Artifacts.GetVersion(req.Context(), sess, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, v)
}

// GET /v1/tenants/{tenant}/versions/{id}/content
func (r *Router) handleVersionContent(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	data, v, err := r.svc.Artifacts.ReadVersion(req.Context(), sess, id)
	if err != nil {
		return err
	}
	w.Header().Set("X-Content-SHA256", v.ContentHash)
	return writeBlob(w, v.Mime, v.OriginalFilename, data)
}

// GET /v1/tenants/{tenant}/search?q=&risk=&limit=
func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	list, err := r.svc.Search.Query(req.Context(), sess, search.Query{
		Text:  middleware.SanitizeString(q.Get("q")),
		Risk:  strings.ToUpper(strings.TrimSpace(q.Get("risk"))),
		Limit: queryInt(req, "limit"),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/tenants/{tenant}/verify
func (r *Router) handleVerify(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	rep, err := r.svc.Integrity.VerifyTenant(req.Context(), sess)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rep)
}

// GET /v1/tenants/{tenant}/export?format=zip|csv|hashes&mode=recent|range|ids
//
//	&limit=25 &from=2026-01-01&to=2026-01-31 &ids=3,4 &include_objects= &omit_sources=
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	sel := inspections.Selection{Mode: inspections.SelectionMode(q.Get("mode")), Limit: queryInt(req, "limit")}
	switch sel.Mode {
	case inspections.SelectDateRange:
		if sel.From, err = parseDay(q.Get("from"), false); err != nil {
			return err
		}
		if sel.To, err = parseDay(q.Get("to"), true); err != nil {
			return err
		}
	case inspections.SelectIDs:
		if sel.IDs, err = middleware.ParseIDList(q.Get("ids")); err != nil {
			return err
		}
	}

	format := q.Get("format")
	switch format {
	case "", "zip", "csv", "hashes":
	default:
		return custody.Invalid("unknown export format %q", format)
	}
	pkg, err := r.svc.Manifest.Export(req.Context(), sess, appmanifest.Request{
		Selection:      sel,
		IncludeObjects: format != "csv" && format != "hashes" && queryBool(req, "include_objects", r.opts.IncludeObjects),
		OmitSources:    queryBool(req, "omit_sources", false),
	})
	if err != nil {
		return err
	}
	w.Header().Set("X-Bundle-ID", pkg.BundleID)
	switch format {
	case "csv":
		return writeBlob(w, "text/csv; charset=utf-8", appmanifest.ManifestName, pkg.Manifest)
	case "hashes":
		return writeBlob(w, "text/plain; charset=utf-8", appmanifest.HashesName, pkg.Hashes)
	}
	return writeBlob(w, "application/zip", "evidence_bundle.zip", pkg.Bundle)
}

// GET /v1/tenants/{tenant}/audit?limit=200
func (r *Router) handleAudit(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	list, err := r.svc.Audit.List(req.Context(), sess, middleware.ValidateLimit(queryInt(req, "limit"), 200, 5000))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/tenants/{tenant}/dataflows {"name": "...", "flows": [...]}
func (r *Router) handleSaveDataFlow(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	var body struct {
		Name  string           `json:"name" validate:"max=255"`
		Flows []dataflows.Flow `json:"flows" validate:"required,min=1,dive"`
	}
	if err := middleware.DecodeJSON(req, &body); err != nil {
		return err
	}
	m, err := r.svc.DataFlows.Save(req.Context(), sess, appdataflows.SaveCommand{
		Name:  middleware.SanitizeString(body.Name),
		Flows: body.Flows,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, m)
}

// GET /v1/tenants/{tenant}/dataflows?limit=100
func (r *Router) handleDataFlows(w http.ResponseWriter, req *http.Request) error {
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	list, err := r.svc.DataFlows.List(req.Context(), sess, middleware.ValidateLimit(queryInt(req, "limit"), appdataflows.DefaultListLimit, 1000))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/tenants/{tenant}/dataflows/{id}?format=mermaid
func (r *Router) handleGetDataFlow(w http.ResponseWriter, req *http.Request) error {
	format := req.URL.Query().Get("format")
	if format != "" && format != "json" && format != "mermaid" {
		return custody.Invalid("unknown format %q", format)
	}
	sess, err := r.session(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "id")
	if err != nil {
		return err
	}
	m, err := r.svc.DataFlows.Load(req.Context(), sess, id)
	if err != nil {
		return err
	}
	if format != "mermaid" {
		return writeJSON(w, http.StatusOK, m)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = io.WriteString(w, m.Mermaid()+"\n")
	return err
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	}
	return "application/octet-stream"
}
