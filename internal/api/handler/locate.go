package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/api/response"
	"github.com/bbagrid/bbagrid/internal/locator"
	"github.com/bbagrid/bbagrid/internal/poll"
)

// LocateHandler answers ad-hoc position lookups.
type LocateHandler struct {
	locator *locator.Service
	logger  zerolog.Logger
}

// NewLocateHandler creates a LocateHandler.
func NewLocateHandler(svc *locator.Service, logger zerolog.Logger) *LocateHandler {
	return &LocateHandler{locator: svc, logger: logger}
}

// Locate handles POST /v1/locate.
func (h *LocateHandler) Locate(w http.ResponseWriter, r *http.Request) {
	var req models.LocateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.locator.Locate(r.Context(), *req.Lat, *req.Lon, poll.Mode(req.Mode))
	if err != nil {
		if errors.Is(err, locator.ErrInvalidCoordinates) || errors.Is(err, poll.ErrInvalidMode) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).Msg("locate failed")
		response.InternalError(w, r, "failed to locate position")
		return
	}

	response.JSON(w, r, http.StatusOK, toLocateResponse(report))
}
