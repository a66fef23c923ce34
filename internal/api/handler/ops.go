package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/api/response"
	"github.com/bbagrid/bbagrid/internal/featureflags"
	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/resilience"
)

// checkTimeout bounds each dependency check.
const checkTimeout = 2 * time.Second

// DependencyCheck probes one dependency for readiness.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsConfig holds the dependencies of the ops endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string
	Table     *grid.Table
	Registry  *resilience.Registry
	Flags     *featureflags.Service
	Checks    []DependencyCheck
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	details := make(map[string]interface{}, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
		if s.Status == models.HealthStatusFail {
			health.Status = models.HealthStatusFail
		}
	}
	if len(details) > 0 {
		health.Details = details
	}

	status := http.StatusOK
	if health.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - grid, dependency and breaker status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: h.runChecks(r.Context()),
		Breakers:   h.breakers(),
	}
	if h.cfg.Table != nil {
		status.Grid = toGridSummary(h.cfg.Table)
	}
	if h.cfg.Flags != nil {
		flags := h.cfg.Flags.All(r.Context())
		status.Flags = make(map[string]any, len(flags))
		for _, f := range flags {
			status.Flags[f.Key] = f.Value
		}
	}

	for _, s := range status.Subsystems {
		status.Status = worse(status.Status, s.Status)
	}
	for _, b := range status.Breakers {
		// An open breaker degrades the service but never fails it.
		if b.Status != models.HealthStatusOK {
			status.Status = worse(status.Status, models.HealthStatusDegraded)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.cfg.Checks))
	for _, c := range h.cfg.Checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			msg := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &msg
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) breakers() []models.BreakerStatus {
	if h.cfg.Registry == nil {
		return []models.BreakerStatus{}
	}

	all := h.cfg.Registry.Snapshot()
	out := make([]models.BreakerStatus, 0, len(all))
	for _, hl := range all {
		b := models.BreakerStatus{
			Name:                hl.Name,
			Status:              models.HealthStatusOK,
			State:               hl.State.String(),
			ConsecutiveFailures: hl.Counts.ConsecutiveFailures,
			LastSuccessAt:       timestampPtr(hl.LastSuccessAt),
			LastFailureAt:       timestampPtr(hl.LastFailureAt),
		}
		switch hl.State {
		case gobreaker.StateOpen:
			b.Status = models.HealthStatusFail
		case gobreaker.StateHalfOpen:
			b.Status = models.HealthStatusDegraded
		}
		if hl.LastError != "" {
			msg := hl.LastError
			b.Message = &msg
		}
		out = append(out, b)
	}
	return out
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}

var severity = map[models.HealthStatus]int{
	models.HealthStatusOK:       0,
	models.HealthStatusDegraded: 1,
	models.HealthStatusFail:     2,
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	if severity[b] > severity[a] {
		return b
	}
	return a
}
