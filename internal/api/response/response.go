// Package response writes JSON bodies and RFC7807 problems for the API
// handlers. Every response carries the request ID in X-Request-Id.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/bbagrid/bbagrid/internal/api/middleware"
	"github.com/bbagrid/bbagrid/internal/api/models"
)

// JSON writes data as JSON with the given status. A nil data writes no body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, status, "", data)
}

// Created writes a 201 with an optional Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	write(w, r, http.StatusCreated, location, data)
}

// NoContent writes a bodiless 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func write(w http.ResponseWriter, r *http.Request, status int, location string, data interface{}) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	if location != "" {
		w.Header().Set("Location", location)
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
}

// Problem writes a problem of the given kind for r.
func Problem(w http.ResponseWriter, r *http.Request, kind models.Kind, detail string) {
	kind.New(middleware.GetRequestID(r.Context()), detail).At(r.URL.Path).Write(w)
}

// BadRequest writes a 400 validation problem with optional field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errs []models.FieldError) {
	models.KindValidation.New(middleware.GetRequestID(r.Context()), detail).
		At(r.URL.Path).
		WithErrors(errs).
		Write(w)
}

// Unauthorized writes a 401 problem.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindUnauthorized, detail)
}

// Forbidden writes a 403 problem.
func Forbidden(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindForbidden, detail)
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindNotFound, detail)
}

// InternalError writes a 500 problem. The detail must not leak internals.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindInternal, detail)
}
