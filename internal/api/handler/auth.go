package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/api/response"
	"github.com/bbagrid/bbagrid/internal/auth"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *auth.Service
	logger      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// AdminToken handles POST /v1/auth/admin-token - exchange the admin key for
// a short-lived admin token.
func (h *AuthHandler) AdminToken(w http.ResponseWriter, r *http.Request) {
	var req models.AdminTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, err := h.authService.IssueAdminToken(req.APIKey)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAdminDisabled):
			response.Forbidden(w, r, "admin access is not configured")
		case errors.Is(err, auth.ErrInvalidAdminKey):
			h.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("rejected admin key")
			response.Unauthorized(w, r, "invalid admin key")
		default:
			h.logger.Error().Err(err).Msg("failed to issue admin token")
			response.InternalError(w, r, "failed to issue admin token")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, toTokenResponse(token))
}
