package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhollow/emberhollow-core/pkg/circuitbreaker"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

type fakeHealth struct{ healthy bool }

func (f *fakeHealth) Healthy() bool { return f.healthy }

type fakeGateway struct {
	state circuitbreaker.State
	stat  *pgxpool.Stat
}

func (f *fakeGateway) BreakerState() circuitbreaker.State { return f.state }
func (f *fakeGateway) Stat() *pgxpool.Stat                { return f.stat }

func newTestServer(healthy bool, state circuitbreaker.State) *Server {
	return NewServer(Config{Addr: ":0"}, &fakeHealth{healthy: healthy},
		&fakeGateway{state: state}, nil, logger.New(logger.Options{Level: "error"}), "test")
}

func TestHealthz_AlwaysOK(t *testing.T) {
	s := newTestServer(false, circuitbreaker.StateOpen)

	rec := httptest.NewRecorder()
	s.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestReadyz_ReadyWhenHealthyAndBreakerClosed(t *testing.T) {
	s := newTestServer(true, circuitbreaker.StateClosed)

	rec := httptest.NewRecorder()
	s.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, true, body["storage_healthy"])
	assert.Equal(t, "closed", body["breaker"])
}

func TestReadyz_NotReadyWhenUnhealthy(t *testing.T) {
	s := newTestServer(false, circuitbreaker.StateClosed)

	rec := httptest.NewRecorder()
	s.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyz_NotReadyWhenBreakerOpen(t *testing.T) {
	s := newTestServer(true, circuitbreaker.StateOpen)

	rec := httptest.NewRecorder()
	s.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "open", body["breaker"])
}

func TestReadyz_OmitsPoolStatsWhenUnavailable(t *testing.T) {
	s := newTestServer(true, circuitbreaker.StateClosed)

	rec := httptest.NewRecorder()
	s.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "pool_total")
}
