package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealth_AlwaysReturns200(t *testing.T) {
	h, _, _ := newTestHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthDetailed_AllProbesHealthy_Returns200(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.probes = []Prober{
		ProberFunc{ProbeName: "db", Fn: func(context.Context) error { return nil }},
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/health/detailed", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body detailedHealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
}

func TestHealthDetailed_OneProbeUnhealthy_Returns503(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.probes = []Prober{
		ProberFunc{ProbeName: "db", Fn: func(context.Context) error { return nil }},
		ProberFunc{ProbeName: "queue", Fn: func(context.Context) error { return errors.New("broker unreachable") }},
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/health/detailed", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body detailedHealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "unhealthy", body.Status)
	require.Len(t, body.Probes, 2)
}
