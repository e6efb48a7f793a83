package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig is a fixed budget of requests per sliding window.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

var (
	// LiveCheckRateLimit guards endpoints that hit the live arrival provider.
	LiveCheckRateLimit = RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}

	// StandardRateLimit guards everything else.
	StandardRateLimit = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// RateLimitByIP limits by client IP as resolved by chi's RealIP middleware.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return cfg.limit(httprate.KeyByRealIP)
}

// RateLimitByUser limits by authenticated user, falling back to client IP.
// It must run after Auth.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return cfg.limit(func(r *http.Request) (string, error) {
		if userID := GetUserID(r.Context()); userID != "" {
			return "user:" + userID, nil
		}
		return httprate.KeyByRealIP(r)
	})
}

func (c RateLimitConfig) limit(key httprate.KeyFunc) func(http.Handler) http.Handler {
	// httprate does not expose the reset time, so Retry-After is the full window.
	retryAfter := strconv.Itoa(int(c.WindowLength.Round(time.Second) / time.Second))

	return httprate.Limit(c.RequestLimit, c.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeProblem(w, r, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		}),
	)
}
