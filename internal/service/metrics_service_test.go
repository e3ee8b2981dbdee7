package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/member-signups/internal/rpc"
)

func TestMetricsServiceObserveRPC(t *testing.T) {
	m := NewMetricsService()
	m.ObserveRPC("event.event", rpc.ActionSearchRead, nil, 10*time.Millisecond)
	m.ObserveRPC("event.event", rpc.ActionSearchRead, &rpc.RemoteFault{Code: 2}, 30*time.Millisecond)
	m.ObserveRPC("event.event", rpc.ActionRead, errors.New("reset"), 20*time.Millisecond)
	m.ObserveSignupRun(12)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.RPCCallsTotal)
	assert.Equal(t, uint64(1), snap.RPCFaultsTotal)
	assert.InDelta(t, 20.0, snap.AverageRPCDurationMs, 0.001)
	assert.Equal(t, uint64(1), snap.SignupRuns)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `member_service_calls_total{action="search_read",model="event.event",outcome="fault"} 1`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveRPC("x", "y", nil, time.Second)
	m.ObserveHTTPRequest("GET", "/", 200, time.Second)
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
