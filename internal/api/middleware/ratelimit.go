package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/supportdesk/supportdesk/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// SubmitRateLimit applies to public support submissions (5 req/15min).
	SubmitRateLimit = RateLimitConfig{
		RequestLimit: 5,
		WindowLength: 15 * time.Minute,
	}

	// TokenRateLimit applies to the admin token endpoint (10 req/min).
	TokenRateLimit = RateLimitConfig{
		RequestLimit: 10,
		WindowLength: time.Minute,
	}

	// AdminRateLimit applies to authenticated admin endpoints (100 req/min).
	AdminRateLimit = RateLimitConfig{
		RequestLimit: 100,
		WindowLength: time.Minute,
	}
)

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(cfg)),
	)
}

// RateLimitByAdmin creates a rate limiter middleware keyed by the authenticated
// admin. Falls back to IP-based rate limiting for unauthenticated requests.
func RateLimitByAdmin(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByAdminOrIP),
		httprate.WithLimitHandler(rateLimitExceededHandler(cfg)),
	)
}

// keyByAdminOrIP returns the admin username if authenticated, otherwise the client IP.
func keyByAdminOrIP(r *http.Request) (string, error) {
	if admin := GetAdmin(r.Context()); admin != "" {
		return "admin:" + admin, nil
	}
	return httprate.KeyByRealIP(r)
}

// rateLimitExceededHandler writes an RFC7807 Problem response when rate limit is exceeded.
func rateLimitExceededHandler(cfg RateLimitConfig) http.HandlerFunc {
	// httprate doesn't expose the exact reset time, so the full window is the upper bound.
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowLength.Seconds())))

	return func(w http.ResponseWriter, r *http.Request) {
		traceID := GetRequestID(r.Context())

		problem := models.NewTooManyRequests(traceID, "Too many requests. Please try again later.")
		problem.Instance = r.URL.Path

		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
