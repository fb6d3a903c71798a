package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/infra/logging"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{custody.NotFound("inspection", 4), http.StatusNotFound},
		{custody.Denied("export"), http.StatusForbidden},
		{custody.Invalid("bad %s", "input"), http.StatusBadRequest},
		{fmt.Errorf("user: %w", custody.ErrDuplicate), http.StatusConflict},
		{fmt.Errorf("object: %w", custody.ErrIntegrityMismatch), http.StatusUnprocessableEntity},
		{fmt.Errorf("openai: %w", custody.ErrAnalyzer), http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestWrapHidesInternalErrors(t *testing.T) {
	r := &Router{log: logging.Discard()}
	h := r.wrap(func(http.ResponseWriter, *http.Request) error {
		return errors.New("pq: password authentication failed for user evidence")
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error\n", rec.Body.String())

	h = r.wrap(func(http.ResponseWriter, *http.Request) error { return custody.Invalid("limit must be positive") })
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "limit must be positive")
}

func TestParseDay(t *testing.T) {
	from, err := parseDay("2026-01-31", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), from)

	to, err := parseDay("2026-01-31", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 31, 23, 59, 59, 999999999, time.UTC), to)

	exact, err := parseDay("2026-01-31T10:00:00+02:00", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC), exact)

	_, err = parseDay("last tuesday", false)
	assert.ErrorIs(t, err, custody.ErrValidation)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/json", contentTypeFor("findings.json"))
	assert.Equal(t, "text/html; charset=utf-8", contentTypeFor("report.html"))
	assert.Equal(t, "application/pdf", contentTypeFor("report.pdf"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("source.bin"))
}
