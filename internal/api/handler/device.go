package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/api/response"
	"github.com/bbagrid/bbagrid/internal/auth"
	"github.com/bbagrid/bbagrid/internal/device"
	"github.com/bbagrid/bbagrid/internal/featureflags"
	"github.com/bbagrid/bbagrid/internal/locator"
	"github.com/bbagrid/bbagrid/internal/poll"
)

// Device list paging limits.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// DeviceHandler handles device endpoints.
type DeviceHandler struct {
	devices *device.Service
	locator *locator.Service
	auth    *auth.Service
	flags   *featureflags.Service
	logger  zerolog.Logger
}

// DeviceHandlerConfig holds the services a DeviceHandler uses.
type DeviceHandlerConfig struct {
	Devices *device.Service
	Locator *locator.Service
	Auth    *auth.Service
	Flags   *featureflags.Service
	Logger  zerolog.Logger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(cfg DeviceHandlerConfig) *DeviceHandler {
	return &DeviceHandler{
		devices: cfg.Devices,
		locator: cfg.Locator,
		auth:    cfg.Auth,
		flags:   cfg.Flags,
		logger:  cfg.Logger,
	}
}

// RegisterDevice handles POST /v1/devices - register a device and issue its token.
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var input models.DeviceRegisterRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	d, err := h.devices.Register(r.Context(), input.Name, poll.Mode(input.Mode))
	if err != nil {
		if errors.Is(err, poll.ErrInvalidMode) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		h.logger.Error().Err(err).Msg("failed to register device")
		response.InternalError(w, r, "failed to register device")
		return
	}

	token, err := h.auth.IssueDeviceToken(d.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("device_id", d.ID).Msg("failed to issue device token")
		response.InternalError(w, r, "failed to issue device token")
		return
	}

	h.logger.Info().Str("device_id", d.ID).Str("mode", string(d.Mode)).Msg("device registered")
	response.Created(w, r, "/v1/devices/"+d.ID, models.DeviceRegisterResponse{
		Device: toDevice(d),
		Token:  toTokenResponse(token),
	})
}

// GetDevice handles GET /v1/devices/{deviceId}.
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := h.devices.Get(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		h.writeError(w, r, err, "failed to get device")
		return
	}
	response.JSON(w, r, http.StatusOK, toDevice(d))
}

// SetMode handles PUT /v1/devices/{deviceId}/mode.
func (h *DeviceHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var input models.DeviceModeRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	d, err := h.devices.SetMode(r.Context(), chi.URLParam(r, "deviceId"), poll.Mode(input.Mode))
	if err != nil {
		h.writeError(w, r, err, "failed to update device mode")
		return
	}
	response.JSON(w, r, http.StatusOK, toDevice(d))
}

// DeleteDevice handles DELETE /v1/devices/{deviceId}.
func (h *DeviceHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if err := h.devices.Delete(r.Context(), deviceID); err != nil {
		h.writeError(w, r, err, "failed to delete device")
		return
	}
	h.logger.Info().Str("device_id", deviceID).Msg("device deleted")
	response.NoContent(w, r)
}

// RecordFix handles POST /v1/devices/{deviceId}/fixes - store a fix and
// return where the device is and when to poll next.
func (h *DeviceHandler) RecordFix(w http.ResponseWriter, r *http.Request) {
	var input models.FixRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	fix := locator.Fix{
		Lat:      *input.Lat,
		Lon:      *input.Lon,
		Accuracy: input.Accuracy,
		Altitude: input.Altitude,
	}
	if input.RecordedAt != nil {
		fix.RecordedAt = input.RecordedAt.Time()
	}

	res, err := h.locator.Record(r.Context(), chi.URLParam(r, "deviceId"), fix)
	if err != nil {
		h.writeError(w, r, err, "failed to record fix")
		return
	}

	response.JSON(w, r, http.StatusOK, models.FixResponse{
		Report:    toLocateResponse(res.Report),
		Changed:   res.Changed,
		From:      blockString(res.From),
		To:        blockString(res.To),
		Published: res.Published,
		Late:      res.Late,
	})
}

// GetTrack handles GET /v1/devices/{deviceId}/track?limit=N.
func (h *DeviceHandler) GetTrack(w http.ResponseWriter, r *http.Request) {
	maxPoints := device.DefaultTrackLimit
	if h.flags != nil {
		maxPoints = h.flags.TrackMaxPoints(r.Context(), device.DefaultTrackLimit)
	}

	limit := maxPoints
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(w, r, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxPoints)
	}

	deviceID := chi.URLParam(r, "deviceId")
	// Fixes of an unknown device are empty, so check existence first.
	if _, err := h.devices.Get(r.Context(), deviceID); err != nil {
		h.writeError(w, r, err, "failed to get device")
		return
	}

	track, err := h.devices.Track(r.Context(), deviceID, limit)
	if err != nil {
		h.writeError(w, r, err, "failed to build track")
		return
	}
	response.JSON(w, r, http.StatusOK, toTrack(track))
}

// RefreshToken handles POST /v1/devices/{deviceId}/token - rotate the
// device's access token.
func (h *DeviceHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if _, err := h.devices.Get(r.Context(), deviceID); err != nil {
		h.writeError(w, r, err, "failed to get device")
		return
	}

	token, err := h.auth.IssueDeviceToken(deviceID)
	if err != nil {
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to refresh device token")
		response.InternalError(w, r, "failed to issue device token")
		return
	}
	response.JSON(w, r, http.StatusOK, toTokenResponse(token))
}

// ListDevices handles GET /v1/admin/devices?limit=N&cursor=C.
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(w, r, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxListLimit)
	}

	res, err := h.devices.List(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list devices")
		response.InternalError(w, r, "failed to list devices")
		return
	}

	out := models.PagedDevices{
		Items: make([]models.Device, 0, len(res.Items)),
		Meta:  models.PagedResponseMeta{Limit: limit},
	}
	for _, d := range res.Items {
		out.Items = append(out.Items, toDevice(d))
	}
	if res.NextCursor != "" {
		next := res.NextCursor
		out.Meta.NextCursor = &next
	}
	response.JSON(w, r, http.StatusOK, out)
}

// writeError maps service errors to problem responses.
func (h *DeviceHandler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		response.NotFound(w, r, "device not found")
	case errors.Is(err, device.ErrInvalidFix),
		errors.Is(err, locator.ErrInvalidCoordinates),
		errors.Is(err, poll.ErrInvalidMode):
		response.BadRequest(w, r, err.Error(), nil)
	default:
		h.logger.Error().Err(err).Str("device_id", chi.URLParam(r, "deviceId")).Msg(msg)
		response.InternalError(w, r, msg)
	}
}
