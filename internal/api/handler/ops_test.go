package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/internal/api/handler"
	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/resilience"
)

type stubBreaker struct {
	state gobreaker.State
}

func (b stubBreaker) State() gobreaker.State { return b.state }

func (b stubBreaker) Counts() gobreaker.Counts {
	return gobreaker.Counts{ConsecutiveFailures: 5}
}

func okCheck(name string) handler.DependencyCheck {
	return handler.DependencyCheck{Name: name, Check: func(context.Context) error { return nil }}
}

func failingCheck(name string) handler.DependencyCheck {
	return handler.DependencyCheck{Name: name, Check: func(context.Context) error {
		return errors.New("connection refused")
	}}
}

func TestReadinessCheck(t *testing.T) {
	tests := []struct {
		name       string
		checks     []handler.DependencyCheck
		wantCode   int
		wantStatus models.HealthStatus
	}{
		{"no checks", nil, http.StatusOK, models.HealthStatusOK},
		{"all pass", []handler.DependencyCheck{okCheck("postgres")}, http.StatusOK, models.HealthStatusOK},
		{"one fails", []handler.DependencyCheck{okCheck("postgres"), failingCheck("pubsub")}, http.StatusServiceUnavailable, models.HealthStatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewOpsHandler(handler.OpsConfig{Checks: tt.checks})

			w := httptest.NewRecorder()
			h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))

			assert.Equal(t, tt.wantCode, w.Code)
			var health models.Health
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
			assert.Equal(t, tt.wantStatus, health.Status)
		})
	}
}

func TestSystemStatus_OpenBreakerDegrades(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("pubsub", stubBreaker{state: gobreaker.StateOpen})
	registry.Register("api", stubBreaker{state: gobreaker.StateClosed})

	h := handler.NewOpsHandler(handler.OpsConfig{
		Version:  "test",
		Table:    grid.Default(),
		Registry: registry,
	})

	w := httptest.NewRecorder()
	h.SystemStatus(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	assert.Equal(t, grid.DefaultName, status.Grid.Name)

	byName := map[string]models.BreakerStatus{}
	for _, b := range status.Breakers {
		byName[b.Name] = b
	}
	require.Len(t, byName, 2)
	assert.Equal(t, models.HealthStatusFail, byName["pubsub"].Status)
	assert.Equal(t, uint32(5), byName["pubsub"].ConsecutiveFailures)
	assert.Equal(t, models.HealthStatusOK, byName["api"].Status)
}

func TestSystemStatus_FailingCheckFails(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{Checks: []handler.DependencyCheck{failingCheck("postgres")}})

	w := httptest.NewRecorder()
	h.SystemStatus(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusFail, status.Status)
	require.Len(t, status.Subsystems, 1)
	require.NotNil(t, status.Subsystems[0].Detail)
	assert.Equal(t, "connection refused", *status.Subsystems[0].Detail)
}
