package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService issues and checks the bearer tokens that guard the task API.
// Access tokens authorize requests; refresh tokens only mint new pairs.
type JWTService interface {
	// GenerateToken signs an access token for userID.
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateToken parses an access token. It returns ErrExpiredToken,
	// ErrTokenNotYetValid, ErrWrongTokenType or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// GenerateRefreshToken signs a refresh token for userID.
	GenerateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateRefreshToken parses a refresh token. It returns
	// ErrExpiredRefreshToken, ErrWrongTokenType or ErrInvalidRefreshToken on failure.
	ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the validated content of a token.
type Claims struct {
	UserID    uuid.UUID
	TokenType string // TokenTypeAccess or TokenTypeRefresh
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}
