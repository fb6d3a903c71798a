package httpserver_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	appinspections "github.com/bryanwahyu/evidence-custody/internal/application/inspections"
	appintegrity "github.com/bryanwahyu/evidence-custody/internal/application/integrity"
	appmanifest "github.com/bryanwahyu/evidence-custody/internal/application/manifest"
	apptenancy "github.com/bryanwahyu/evidence-custody/internal/application/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/httpserver"
	"github.com/bryanwahyu/evidence-custody/internal/infra/logging"
	"github.com/bryanwahyu/evidence-custody/internal/testsupport"
)

const (
	adminPassword  = "change-me-immediately"
	viewerPassword = "viewer-password-1"
)

type harness struct {
	srv *httptest.Server
	fix *testsupport.Fixture
}

func newHarness(t *testing.T, tune ...func(*httpserver.Options)) *harness {
	t.Helper()
	f := testsupport.New(t)
	log := logging.Discard()

	ten := &apptenancy.Service{Store: f.Store, Audit: f.Audit, Clock: f.Clock, Log: log}
	res, err := ten.Bootstrap(context.Background(), apptenancy.BootstrapCommand{AdminPassword: adminPassword})
	require.NoError(t, err)
	other, _, err := ten.CreateTenant(context.Background(), res.Admin.Actor(), "other")
	require.NoError(t, err)
	_, err = ten.CreateUser(context.Background(), res.Admin.Actor(), apptenancy.CreateUserCommand{
		Username: "viewer",
		Password: viewerPassword,
		Role:     tenancy.RoleViewer,
		TenantID: &other.ID,
	})
	require.NoError(t, err)

	opts := httpserver.Options{
		Metrics:        f.Metrics,
		Gatherer:       f.Registry,
		IncludeObjects: true,
		Log:            log,
	}
	for _, fn := range tune {
		fn(&opts)
	}
	h := httpserver.NewRouter(httpserver.Services{
		Tenancy:     ten,
		Artifacts:   f.Artifacts(),
		Inspections: f.Inspector(),
		Search:      f.Search(),
		Integrity:   &appintegrity.Service{Store: f.Store, Objects: f.Objects, Audit: f.Audit, Clock: f.Clock, Metrics: f.Metrics, Log: log},
		Manifest:    &appmanifest.Service{Store: f.Store, Objects: f.Objects, Audit: f.Audit, Clock: f.Clock, Metrics: f.Metrics, Log: log},
		Audit:       &appaudit.Service{Store: f.Store, Log: log},
		DataFlows:   f.DataFlows(),
	}, opts)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, fix: f}
}

func (h *harness) do(t *testing.T, method, path, user, password string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, password)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) admin(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	return h.do(t, method, path, apptenancy.DefaultAdminName, adminPassword, body, contentType)
}

func (h *harness) inspectText(t *testing.T, name, text string) appinspections.Outcome {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"name": name, "text": text})
	require.NoError(t, err)
	resp := h.admin(t, http.MethodPost, "/v1/tenants/default/inspections/text", bytes.NewReader(payload), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out appinspections.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

func TestRouter_AuthBoundary(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/v1/me", "", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	resp = h.do(t, http.MethodGet, "/v1/me", apptenancy.DefaultAdminName, "wrong-password-123", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/health", "", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/metrics", "", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.admin(t, http.MethodGet, "/v1/me", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me tenancy.Actor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, apptenancy.DefaultAdminName, me.Username)
	assert.Equal(t, tenancy.RoleSuperAdmin, me.Role)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRouter_Permissions(t *testing.T) {
	h := newHarness(t)

	// viewer may read its own tenant but not inspect, and may not open another
	resp := h.do(t, http.MethodGet, "/v1/tenants/other/inspections", "viewer", viewerPassword, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/v1/tenants/other/inspections/text", "viewer", viewerPassword,
		strings.NewReader(`{"text":"hello"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/v1/tenants/default/inspections", "viewer", viewerPassword, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/v1/tenants", "viewer", viewerPassword, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var visible []tenancy.Tenant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&visible))
	require.Len(t, visible, 1)
	assert.Equal(t, "other", visible[0].Name)

	resp = h.do(t, http.MethodPost, "/v1/tenants", "viewer", viewerPassword, strings.NewReader(`{"name":"x"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.admin(t, http.MethodGet, "/v1/tenants/missing/inspections", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_InspectTextAndRead(t *testing.T) {
	h := newHarness(t)

	out := h.inspectText(t, "paste", "SSN 123-45-6789")
	assert.Equal(t, "MEDIUM", string(out.Inspection.RiskLevel))
	assert.Nil(t, out.Version)
	require.NotEmpty(t, out.Evidence)

	id := strconv.FormatInt(out.Inspection.ID, 10)
	resp := h.admin(t, http.MethodGet, "/v1/tenants/default/inspections/"+id, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/inspections/"+id+"/evidence", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ev := strconv.FormatInt(out.Evidence[0].ID, 10)
	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/evidence/"+ev+"/content", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, out.Evidence[0].ContentHash, resp.Header.Get("X-Content-SHA256"))

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/search?q=123-45", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hits []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hits))
	assert.Len(t, hits, 1)

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/inspections/999", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/inspections/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.admin(t, http.MethodPost, "/v1/tenants/default/inspections/text",
		strings.NewReader(`{"text":"x","extra":1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_InspectFileVersions(t *testing.T) {
	h := newHarness(t)

	upload := func(content string) []appinspections.Outcome {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "report.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		resp := h.admin(t, http.MethodPost, "/v1/tenants/default/inspections/file", &buf, mw.FormDataContentType())
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("upload: %d %s", resp.StatusCode, readBody(t, resp))
		}
		var out []appinspections.Outcome
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		require.Len(t, out, 1)
		return out
	}

	first := upload("contact a@b.io")
	require.NotNil(t, first[0].Version)
	assert.True(t, first[0].VersionCreated)
	again := upload("contact a@b.io")
	assert.False(t, again[0].VersionCreated)
	second := upload("contact a@b.io and SSN 123-45-6789")
	assert.Equal(t, 2, second[0].Version.Version)

	resp := h.admin(t, http.MethodGet, "/v1/tenants/default/artifacts/"+strconv.FormatInt(first[0].Version.ArtifactID, 10)+"/versions", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var versions []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&versions))
	assert.Len(t, versions, 2)

	vid := strconv.FormatInt(first[0].Version.ID, 10)
	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/versions/"+vid+"/content", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "contact a@b.io", string(readBody(t, resp)))

	compare := "/v1/tenants/default/inspections/compare?left=" + strconv.FormatInt(first[0].Inspection.ID, 10) +
		"&right=" + strconv.FormatInt(second[0].Inspection.ID, 10)
	resp = h.admin(t, http.MethodGet, compare, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cmp appinspections.Comparison
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cmp))
	assert.Equal(t, []string{"SSN"}, cmp.CategoriesOnlyRight)

	resp = h.admin(t, http.MethodPost, "/v1/tenants/default/verify", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.admin(t, http.MethodPost, "/v1/tenants/default/inspections/file", strings.NewReader("not multipart"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_Export(t *testing.T) {
	h := newHarness(t)
	h.inspectText(t, "paste", "SSN 123-45-6789")

	resp := h.admin(t, http.MethodGet, "/v1/tenants/default/export?mode=recent&limit=5", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Bundle-ID"))
	data := readBody(t, resp)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := map[string]bool{}
	for _, zf := range zr.File {
		names[zf.Name] = true
	}
	assert.True(t, names[appmanifest.ManifestName])
	assert.True(t, names[appmanifest.HashesName])
	assert.Greater(t, len(zr.File), 2)

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/export?mode=recent&format=csv", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv"))
	assert.Contains(t, string(readBody(t, resp)), "paste")

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/export?mode=recent&format=hashes", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, readBody(t, resp))

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/export?mode=recent&format=tar", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/export?mode=range&from=2020-01-01&to=2020-01-02", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/export?mode=range&from=yesterday&to=2020-01-02", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_TenantAdministration(t *testing.T) {
	h := newHarness(t)

	resp := h.admin(t, http.MethodPost, "/v1/tenants", strings.NewReader(`{"name":"acme"}`), "application/json")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = h.admin(t, http.MethodPost, "/v1/tenants", strings.NewReader(`{"name":"acme"}`), "application/json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.admin(t, http.MethodPost, "/v1/users",
		strings.NewReader(`{"username":"viewer","password":"another-password","role":"viewer"}`), "application/json")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.admin(t, http.MethodPut, "/v1/tenants/other/active", strings.NewReader(`{"active":false}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = h.do(t, http.MethodGet, "/v1/me", "viewer", viewerPassword, nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.admin(t, http.MethodGet, "/v1/audit?limit=50", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	assert.NotEmpty(t, events)
}

func (h *harness) globalEvents(t *testing.T) map[audit.EventType]int {
	t.Helper()
	events, err := h.fix.Store.Audit().ListGlobal(context.Background(), 1000)
	require.NoError(t, err)
	counts := map[audit.EventType]int{}
	for _, e := range events {
		counts[e.EventType]++
	}
	return counts
}

func TestRouter_RepeatedRequestsDoNotFloodAudit(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 5; i++ {
		resp := h.admin(t, http.MethodGet, "/v1/me", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	for i := 0; i < 5; i++ {
		resp := h.do(t, http.MethodGet, "/v1/me", apptenancy.DefaultAdminName, "wrong-password-123", nil, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	counts := h.globalEvents(t)
	assert.Equal(t, 1, counts[audit.EventLogin])
	assert.Equal(t, 1, counts[audit.EventLoginFailed])
}

func TestRouter_RateLimitPrecedesAuthentication(t *testing.T) {
	h := newHarness(t, func(o *httpserver.Options) {
		o.RateLimit = 0.001
		o.RateBurst = 3
	})

	statuses := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		resp := h.do(t, http.MethodGet, "/v1/me", "nobody", "guess-number-"+strconv.Itoa(i), nil, "")
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{401, 401, 401, 429, 429, 429, 429, 429, 429, 429}, statuses)
	assert.Equal(t, 1, h.globalEvents(t)[audit.EventLoginFailed])

	// probes stay open while the client is throttled
	resp := h.do(t, http.MethodGet, "/live", "", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_DataFlows(t *testing.T) {
	h := newHarness(t)

	body := `{"name":"payroll","flows":[
		{"source":"HR Portal","destination":"Payroll","data_type":"PII","cui_present":true,"cmmc_level":"L2"},
		{"source":"Payroll","destination":"Bank Gateway"}]}`
	resp := h.admin(t, http.MethodPost, "/v1/tenants/default/dataflows", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var saved dataflows.Map
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.Equal(t, "payroll", saved.Name)
	require.Len(t, saved.Flows, 2)

	resp = h.admin(t, http.MethodPost, "/v1/tenants/default/dataflows",
		strings.NewReader(`{"flows":[{"source":"a","destination":"b","cmmc_level":"L9"}]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = h.admin(t, http.MethodPost, "/v1/tenants/default/dataflows", strings.NewReader(`{"flows":[]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/dataflows", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []dataflows.Map
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Flows)

	id := strconv.FormatInt(saved.ID, 10)
	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/dataflows/"+id+"?format=mermaid", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "flowchart LR\nHR_Portal --> Payroll\nPayroll --> Bank_Gateway\n", string(readBody(t, resp)))

	resp = h.admin(t, http.MethodGet, "/v1/tenants/default/dataflows/"+id+"?format=svg", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// maps are tenant scoped
	resp = h.admin(t, http.MethodGet, "/v1/tenants/other/dataflows/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/v1/tenants/other/dataflows", "viewer", viewerPassword, strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
