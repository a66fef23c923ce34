package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bbagrid/bbagrid/internal/api/middleware"
)

// requestIDOf runs RequestID with the given incoming header and returns the
// ID seen by the handler and the one echoed back.
func requestIDOf(t *testing.T, incoming string) (seen, echoed string) {
	t.Helper()
	h := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/grid", http.NoBody)
	if incoming != "" {
		req.Header.Set(middleware.RequestIDHeader, incoming)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec.Header().Get(middleware.RequestIDHeader)
}

func TestRequestID_Generated(t *testing.T) {
	seen, echoed := requestIDOf(t, "")

	assert.Equal(t, seen, echoed)
	assert.True(t, strings.HasPrefix(seen, "req_"), seen)
	assert.Len(t, seen, len("req_")+22)
}

func TestRequestID_Incoming(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"client id", "client-request-123", true},
		{"dotted", "lb.7f3a_01", true},
		{"max length", strings.Repeat("a", 64), true},
		{"too long", strings.Repeat("a", 65), false},
		{"spaces", "has space", false},
		{"header injection", "abc\r\nX-Evil: 1", false},
		{"unicode", "réq", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, echoed := requestIDOf(t, tt.incoming)

			assert.Equal(t, seen, echoed)
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
				assert.True(t, strings.HasPrefix(seen, "req_"), seen)
			}
		})
	}
}

func TestRequestID_Unique(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id, _ := requestIDOf(t, "")
		_, dup := ids[id]
		assert.False(t, dup, "duplicate request ID %s", id)
		ids[id] = struct{}{}
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/grid", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}
