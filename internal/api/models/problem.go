package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC7807 problem document, served as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemBaseURI prefixes every problem type URI.
const ProblemBaseURI = "https://bbagrid.dev/problems/"

// Kind is a class of problem the API can return.
type Kind struct {
	Slug   string
	Title  string
	Status int
}

// Problem kinds served by the API.
var (
	KindValidation           = Kind{"validation-error", "Validation error", http.StatusBadRequest}
	KindUnauthorized         = Kind{"unauthorized", "Unauthorized", http.StatusUnauthorized}
	KindForbidden            = Kind{"forbidden", "Forbidden", http.StatusForbidden}
	KindTLSRequired          = Kind{"tls-required", "TLS required", http.StatusForbidden}
	KindNotFound             = Kind{"not-found", "Not found", http.StatusNotFound}
	KindUnsupportedMediaType = Kind{"unsupported-media-type", "Unsupported media type", http.StatusUnsupportedMediaType}
	KindTooManyRequests      = Kind{"too-many-requests", "Too many requests", http.StatusTooManyRequests}
	KindInternal             = Kind{"internal-error", "Internal server error", http.StatusInternalServerError}
	KindUnavailable          = Kind{"service-unavailable", "Service unavailable", http.StatusServiceUnavailable}
)

// TypeURI returns the problem type URI for k.
func (k Kind) TypeURI() string {
	return ProblemBaseURI + k.Slug
}

// New builds a problem of kind k.
func (k Kind) New(traceID, detail string) *Problem {
	return &Problem{
		Type:    k.TypeURI(),
		Title:   k.Title,
		Status:  k.Status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// At sets the instance to the request path and returns p.
func (p *Problem) At(path string) *Problem {
	p.Instance = path
	return p
}

// WithErrors attaches field errors and returns p.
func (p *Problem) WithErrors(errs []FieldError) *Problem {
	p.Errors = errs
	return p
}

// Write sends p with its status. The trace ID doubles as the request ID.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
