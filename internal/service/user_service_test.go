package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/adscript-api/internal/domain"
	"github.com/phrazzld/adscript-api/internal/mocks"
	"github.com/phrazzld/adscript-api/internal/service"
	"github.com/phrazzld/adscript-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_Register(t *testing.T) {
	users := mocks.NewMockUserStore()
	svc := service.NewUserService(users, &mocks.MockPasswordVerifier{ShouldSucceed: true}, nil)

	user, err := svc.Register(context.Background(), "someone@example.com", "correct-horse-battery")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)

	_, err = svc.Register(context.Background(), "someone@example.com", "correct-horse-battery")
	assert.ErrorIs(t, err, store.ErrEmailExists)

	_, err = svc.Register(context.Background(), "someone-else@example.com", "short")
	assert.ErrorIs(t, err, domain.ErrPasswordTooShort)
}

func TestUserService_Authenticate(t *testing.T) {
	users := mocks.NewMockUserStore()
	verifier := &mocks.MockPasswordVerifier{
		CompareFn: func(hashedPassword, password string) error {
			if hashedPassword != password {
				return mocks.ErrPasswordMismatch
			}
			return nil
		},
	}
	svc := service.NewUserService(users, verifier, nil)

	registered, err := svc.Register(context.Background(), "someone@example.com", "correct-horse-battery")
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "someone@example.com", "correct-horse-battery")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = svc.Authenticate(context.Background(), "someone@example.com", "wrong-password-here")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "correct-horse-battery")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	users.GetByEmailFn = func(ctx context.Context, email string) (*domain.User, error) {
		return nil, errors.New("db down")
	}
	_, err = svc.Authenticate(context.Background(), "someone@example.com", "correct-horse-battery")
	require.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestUserService_GetUser(t *testing.T) {
	users := mocks.NewMockUserStore()
	svc := service.NewUserService(users, &mocks.MockPasswordVerifier{}, nil)

	registered, err := svc.Register(context.Background(), "someone@example.com", "correct-horse-battery")
	require.NoError(t, err)

	user, err := svc.GetUser(context.Background(), registered.ID)
	require.NoError(t, err)
	assert.Equal(t, registered.Email, user.Email)

	_, err = svc.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
