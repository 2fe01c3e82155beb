package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/phrazzld/adscript-api/internal/api/shared"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
)

// RateLimitKeyPrefix namespaces task creation counters.
const RateLimitKeyPrefix = "ad-script-requests"

// RateLimitResponse is the 429 body.
type RateLimitResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// TaskCreationRateLimit allows maxAttempts requests per window for each
// authenticated user, falling back to the client IP for anonymous requests.
// It must be mounted after Authenticate so the user ID is available.
func TaskCreationRateLimit(maxAttempts int, window time.Duration, base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	base = base.With(slog.String("component", "rate_limiter"))

	return httprate.Limit(
		maxAttempts,
		window,
		httprate.WithKeyFuncs(RateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			retryAfter := retryAfterSeconds(w, window)
			key, _ := RateLimitKey(r)

			logger.FromContextOrDefault(r.Context(), base).Warn("rate limit exceeded",
				"key", key,
				"retry_after_seconds", retryAfter,
				"trace_id", shared.GetTraceID(r.Context()))

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			shared.RespondWithJSON(w, r, http.StatusTooManyRequests, RateLimitResponse{
				Message: "Too many requests",
				Error:   fmt.Sprintf("Please try again in %d seconds.", retryAfter),
			})
		}),
		httprate.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"An unexpected error occurred", err)
		}),
	)
}

// RateLimitKey buckets requests by user ID, or by client IP when unauthenticated.
func RateLimitKey(r *http.Request) (string, error) {
	if userID, ok := shared.UserIDFromContext(r.Context()); ok {
		return RateLimitKeyPrefix + ":" + userID.String(), nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return RateLimitKeyPrefix + ":" + ip, nil
}

func retryAfterSeconds(w http.ResponseWriter, window time.Duration) int {
	if v, err := strconv.Atoi(w.Header().Get("Retry-After")); err == nil && v > 0 {
		return v
	}
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
