package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/api/shared"
	"github.com/phrazzld/adscript-api/internal/config"
	"github.com/phrazzld/adscript-api/internal/platform/logger"
	"github.com/phrazzld/adscript-api/internal/service"
	"github.com/phrazzld/adscript-api/internal/service/auth"
)

// AuthHandler handles registration, login and token refresh.
type AuthHandler struct {
	users      service.UserService
	jwtService auth.JWTService
	authConfig config.AuthConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	users service.UserService,
	jwtService auth.JWTService,
	authConfig config.AuthConfig,
	log *slog.Logger,
) *AuthHandler {
	if users == nil {
		panic("users cannot be nil") // ALLOW-PANIC
	}
	if jwtService == nil {
		panic("jwtService cannot be nil") // ALLOW-PANIC
	}
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		users:      users,
		jwtService: jwtService,
		authConfig: authConfig,
		logger:     log.With(slog.String("component", "auth_handler")),
		now:        time.Now,
	}
}

// Register creates an account and returns a token pair.
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create user")
		return
	}

	h.respondWithTokens(w, r, http.StatusCreated, user.ID)
}

// Login verifies credentials and returns a token pair.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to authenticate user")
		return
	}

	h.respondWithTokens(w, r, http.StatusOK, user.ID)
}

// RefreshToken exchanges a valid refresh token for a new token pair.
// POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req RefreshTokenRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		log.Debug("refresh token rejected", slog.String("error", err.Error()))
		HandleAPIError(w, r, err, "")
		return
	}

	access, refresh, expiresAt, err := h.issueTokens(r, claims.UserID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, RefreshTokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	})
}

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, r *http.Request, status int, userID uuid.UUID) {
	access, refresh, expiresAt, err := h.issueTokens(r, userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate authentication token")
		return
	}

	shared.RespondWithJSON(w, r, status, AuthResponse{
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	})
}

func (h *AuthHandler) issueTokens(r *http.Request, userID uuid.UUID) (string, string, string, error) {
	access, err := h.jwtService.GenerateToken(r.Context(), userID)
	if err != nil {
		return "", "", "", err
	}
	refresh, err := h.jwtService.GenerateRefreshToken(r.Context(), userID)
	if err != nil {
		return "", "", "", err
	}
	expiresAt := h.now().UTC().
		Add(time.Duration(h.authConfig.TokenLifetimeMinutes) * time.Minute).
		Format(time.RFC3339)
	return access, refresh, expiresAt, nil
}
