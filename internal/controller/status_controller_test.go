package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairnode-agent/internal/controller"
	"flairnode-agent/internal/devicecfg"
	"flairnode-agent/internal/eventbus"
	"flairnode-agent/internal/model"
	"flairnode-agent/internal/service"
)

type fixedSnapshot struct{}

func (fixedSnapshot) Snapshot() model.ModuleStatusSnapshot {
	return model.ModuleStatusSnapshot{
		OverallStatus: "online",
		Modules:       []model.ModuleStatus{{Name: "NetworkModule", Status: model.StatusOnline}},
	}
}

type fixedIdentity struct{}

func (fixedIdentity) ID() int              { return 9 }
func (fixedIdentity) SerialNumber() string { return "FN-0000009" }

type fixedConfig struct{}

func (fixedConfig) Current() devicecfg.LiveConfig {
	return devicecfg.LiveConfig{LogLevel: "minimal", Extra: map[string]json.RawMessage{"zone": json.RawMessage(`"lobby"`)}}
}

type fixedDelivery struct{}

func (fixedDelivery) Register(eventbus.Subscriber) {}
func (fixedDelivery) Start()                       {}
func (fixedDelivery) RunCycle(context.Context)     {}
func (fixedDelivery) Stats() service.DeliveryStats {
	return service.DeliveryStats{QueueDepth: 4, ErrorCount: 2, ReplayPending: true, LastSequence: 17}
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	controller.RegisterStatusRoutes(r, controller.NewStatusController(fixedSnapshot{}, fixedDelivery{}, fixedIdentity{}, fixedConfig{}))
	return r
}

func get(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	w := get(t, newRouter(), "/api/v1/status")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Message string                    `json:"message"`
		Data    controller.StatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 9, body.Data.NodeID)
	assert.Equal(t, "FN-0000009", body.Data.SerialNumber)
	assert.Equal(t, "online", body.Data.Health.OverallStatus)
	require.Len(t, body.Data.Health.Modules, 1)
}

func TestGetQueue(t *testing.T) {
	w := get(t, newRouter(), "/api/v1/queue")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data service.DeliveryStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Data.QueueDepth)
	assert.Equal(t, uint64(17), body.Data.LastSequence)
	assert.True(t, body.Data.ReplayPending)
}

func TestGetConfig(t *testing.T) {
	w := get(t, newRouter(), "/api/v1/config")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "minimal", body.Data["logLevel"])
	assert.Equal(t, "lobby", body.Data["zone"])
}

func TestHealthzAndMetrics(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusOK, get(t, r, "/healthz").Code)
	w := get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
