package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/api/shared"
	"github.com/phrazzld/adscript-api/internal/domain"
)

// getUserIDFromContext returns the user placed in the context by the auth middleware.
func getUserIDFromContext(r *http.Request) (uuid.UUID, bool) {
	return shared.UserIDFromContext(r.Context())
}

// getPathTaskID parses a positive integer task ID from the URL. Malformed IDs
// wrap domain.ErrInvalidID and are reported as not found.
func getPathTaskID(r *http.Request, paramName string) (int64, error) {
	raw := chi.URLParam(r, paramName)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrInvalidID, paramName, raw)
	}
	return id, nil
}

// queryInt reads a positive integer query parameter, returning def when it is
// absent or not a positive integer.
func queryInt(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}
