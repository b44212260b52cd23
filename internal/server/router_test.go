package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-events/internal/devel/devel_api"
	"ms-events/internal/events/event_api"
	"ms-events/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type rejectAll struct{}

func (rejectAll) Verify(context.Context, string) (*oidc.IDToken, error) {
	return nil, errors.New("token expired")
}

func newTestRouter(db Pinger, verifier *rejectAll) http.Handler {
	log := logger.Discard()
	d := Deps{
		Events: event_api.NewHandler(nil, log),
		Devel:  devel_api.NewHandler(nil, nil, log),
		DB:     db,
		Logger: log,
	}
	if verifier != nil {
		d.Verifier = verifier
	}
	return NewRouter(d)
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHealth(t *testing.T) {
	rr := get(newTestRouter(pinger{}, nil), "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"database":"up"`)

	rr = get(newTestRouter(pinger{err: errors.New("connection refused")}, nil), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	rr := get(newTestRouter(pinger{}, &rejectAll{}), "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	h := newTestRouter(pinger{}, &rejectAll{})

	for _, target := range []string{"/test", "/update-entity-field-definitions", "/api/events"} {
		rr := get(h, target)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, target)
	}
}
