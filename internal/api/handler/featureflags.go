package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/api/middleware"
	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/api/response"
	"github.com/bbagrid/bbagrid/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.list(r))
}

func (h *FeatureFlagsHandler) list(r *http.Request) featureflags.FlagList {
	return featureflags.FlagList{Items: h.service.All(r.Context())}
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags - update feature flags.
// All updates are validated before any is applied.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Updates) == 0 {
		response.BadRequest(w, r, "no updates given", nil)
		return
	}

	var fieldErrs []models.FieldError
	flags := make([]featureflags.Flag, 0, len(req.Updates))
	for _, u := range req.Updates {
		if err := featureflags.ValidateValue(u.Key, u.Value); err != nil {
			code := "invalid"
			if errors.Is(err, featureflags.ErrUnknownFlag) {
				code = "unknown"
			}
			fieldErrs = append(fieldErrs, models.FieldError{Field: u.Key, Message: err.Error(), Code: code})
			continue
		}
		flags = append(flags, featureflags.Flag{Key: u.Key, Value: u.Value})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid flag updates", fieldErrs)
		return
	}

	if err := h.service.Set(r.Context(), flags...); err != nil {
		h.logger.Error().Err(err).Msg("failed to update feature flags")
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	keys := make([]string, 0, len(flags))
	for _, f := range flags {
		keys = append(keys, f.Key)
	}
	h.logger.Info().
		Strs("keys", keys).
		Str("reason", req.Reason).
		Str("by", middleware.GetSubject(r.Context())).
		Msg("feature flags updated")

	response.JSON(w, r, http.StatusOK, h.list(r))
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate - invalidate flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
