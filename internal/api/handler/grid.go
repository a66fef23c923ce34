package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/api/response"
	"github.com/bbagrid/bbagrid/internal/grid"
)

// GridHandler serves the grid table.
type GridHandler struct {
	table   *grid.Table
	geojson []byte
	logger  zerolog.Logger
}

// NewGridHandler creates a GridHandler. The GeoJSON export is rendered once.
func NewGridHandler(table *grid.Table, logger zerolog.Logger) (*GridHandler, error) {
	data, err := table.GeoJSON()
	if err != nil {
		return nil, err
	}
	return &GridHandler{table: table, geojson: data, logger: logger}, nil
}

// Summary handles GET /v1/grid - table name, spans and extent.
func (h *GridHandler) Summary(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toGridSummary(h.table))
}

// GeoJSON handles GET /v1/grid/geojson - one polygon feature per block.
func (h *GridHandler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(h.geojson); err != nil {
		h.logger.Debug().Err(err).Msg("write geojson")
	}
}

// Block handles GET /v1/grid/blocks/{row}/{col}.
func (h *GridHandler) Block(w http.ResponseWriter, r *http.Request) {
	row, errRow := strconv.Atoi(chi.URLParam(r, "row"))
	col, errCol := strconv.Atoi(chi.URLParam(r, "col"))
	if errRow != nil || errCol != nil {
		response.BadRequest(w, r, "row and col must be integers", nil)
		return
	}

	block, err := h.table.Block(row, col)
	if err != nil {
		if errors.Is(err, grid.ErrBlockNotFound) {
			response.NotFound(w, r, "block not in grid")
			return
		}
		response.InternalError(w, r, "failed to read block")
		return
	}
	response.JSON(w, r, http.StatusOK, toBlock(block))
}
