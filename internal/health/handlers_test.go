package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-pos/internal/health"
)

type fakeChecker struct {
	redisErr error
	loaded   bool
}

func (f fakeChecker) PingRedis(context.Context, time.Duration) error { return f.redisErr }
func (f fakeChecker) DataLoaded() bool                               { return f.loaded }

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	health.Handler{}.Live(rec, httptest.NewRequest(http.MethodGet, "/healthz/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestReadyAllHealthy(t *testing.T) {
	h := health.Handler{Checker: fakeChecker{loaded: true}}
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "ok", status["redis"])
	require.Equal(t, "ok", status["catalog"])
}

func TestReadyRedisDown(t *testing.T) {
	h := health.Handler{Checker: fakeChecker{redisErr: errors.New("dial refused"), loaded: true}}
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyCatalogNotLoadedIsDegradedButReady(t *testing.T) {
	h := health.Handler{Checker: fakeChecker{loaded: false}}
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "not loaded", status["catalog"])
}

func TestReadyWithoutChecker(t *testing.T) {
	rec := httptest.NewRecorder()
	health.Handler{}.Ready(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
