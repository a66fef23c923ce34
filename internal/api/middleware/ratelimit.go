package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/poll"
)

// RateLimitConfig is a fixed-window request budget.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// PerMinute returns a budget of n requests per minute.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{Limit: n, Window: time.Minute}
}

var (
	// AuthRateLimit guards token issuance and device registration.
	AuthRateLimit = PerMinute(10)

	// FixRateLimit allows a device twice the fix rate of the fastest poll
	// interval, leaving room for spooled fixes flushed after an outage.
	FixRateLimit = PerMinute(2 * int(time.Minute/poll.DefaultMinUpdateTime))
)

// RateLimitByIP limits by client address. Behind a proxy it relies on
// chi's RealIP having rewritten RemoteAddr.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return newLimiter(cfg, httprate.KeyByRealIP)
}

// RateLimitByPrincipal limits by token subject, so a device keeps one
// budget across network changes. Anonymous requests are keyed by address.
func RateLimitByPrincipal(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return newLimiter(cfg, func(r *http.Request) (string, error) {
		if sub := GetSubject(r.Context()); sub != "" {
			return "sub:" + sub, nil
		}
		return httprate.KeyByRealIP(r)
	})
}

func newLimiter(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.Window.Seconds())))
	return httprate.Limit(
		cfg.Limit,
		cfg.Window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			// httprate does not expose the window reset, so advise a full window.
			w.Header().Set("Retry-After", retryAfter)
			writeProblem(w, r, models.KindTooManyRequests, "rate limit exceeded, retry after "+retryAfter+"s")
		}),
	)
}
