package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/api/shared"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/redact"
	"github.com/phrazzld/adscript-api/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
	logger     *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(jwtService auth.JWTService, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &AuthMiddleware{
		jwtService: jwtService,
		logger:     log.With(slog.String("component", "auth_middleware")),
	}
}

// Authenticate validates the bearer access token and stores the user ID in
// the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), strings.TrimSpace(token))
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrExpiredToken):
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			return
		case errors.Is(err, auth.ErrInvalidToken),
			errors.Is(err, auth.ErrTokenNotYetValid),
			errors.Is(err, auth.ErrWrongTokenType):
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			return
		default:
			logger.FromContextOrDefault(r.Context(), m.logger).
				Error("failed to validate token", "error", redact.Error(err))
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			return
		}

		if claims == nil || claims.UserID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(shared.WithUserID(r.Context(), claims.UserID)))
	})
}

// GetUserID extracts the authenticated user ID from the request context.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	return shared.UserIDFromContext(r.Context())
}
