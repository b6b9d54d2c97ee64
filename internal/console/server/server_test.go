package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xela07ax/agentpulse/internal/console/handler"
	"github.com/xela07ax/agentpulse/internal/console/server"
	"github.com/xela07ax/agentpulse/internal/domain"
	"github.com/xela07ax/agentpulse/internal/infra"
	"github.com/xela07ax/agentpulse/internal/realtime"
	"github.com/xela07ax/agentpulse/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct{}

func (stubProvider) SystemHealth(context.Context) (domain.SystemHealthSnapshot, map[string]domain.AgentPerformance, error) {
	return domain.SystemHealthSnapshot{
		TotalAgents: 1, HealthyAgents: 1,
		Agents: []domain.AgentHealth{{AgentID: "seo", Status: domain.StatusHealthy, Healthy: true}},
	}, nil, nil
}

func (stubProvider) BusinessMetrics(context.Context) (domain.BusinessMetricsSnapshot, error) {
	return domain.BusinessMetricsSnapshot{Leads: domain.LeadMetrics{Total: 3}, GeneratedAt: time.Now()}, nil
}

func (stubProvider) RecentActivity(context.Context) ([]domain.ActivityItem, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	logger := zap.NewNop()
	bus := realtime.NewBus(logger)
	roster := []domain.AgentInfo{{ID: "seo", Name: "SEO Optimizer", Category: "seo"}}
	st := store.New(stubProvider{}, roster, bus, nil, nil, realtime.SystemClock{}, nil, logger, infra.StoreConfig{})

	console := server.NewConsoleServer(
		&infra.Config{},
		logger,
		nil,
		handler.NewDashboardHandler(st),
		handler.NewAlertHandler(st),
		handler.NewRealtimeHandler(st),
	)

	srv := httptest.NewServer(console)
	t.Cleanup(srv.Close)
	return srv, st
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDashboardRefreshAndGet(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/refresh?force=true", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap domain.DashboardSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.NotNil(t, snap.BusinessMetrics)
	assert.Equal(t, 3, snap.BusinessMetrics.Leads.Total)
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, "seo", snap.Agents[0].Info.ID)

	get, err := http.Get(srv.URL + "/api/v1/dashboard")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "application/json", get.Header.Get("Content-Type"))
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	srv, st := newTestServer(t)

	a := st.RaiseAlert(domain.AlertWarning, "disk pressure", "seo agent host")

	resp, err := http.Post(srv.URL+"/api/v1/alerts/"+a.ID+"/ack", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/alerts/"+a.ID+"/dismiss", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Gone now: a second dismiss is a 404
	resp, err = http.Post(srv.URL+"/api/v1/alerts/"+a.ID+"/dismiss", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRealtimeStatusWithoutController(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/realtime/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body["connected"])
}
