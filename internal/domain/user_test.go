package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewUser(t *testing.T) {
	validEmail := "test@example.com"
	validPassword := "averylongpassword"

	user, err := NewUser(validEmail, validPassword)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if user.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}
	if user.Email != validEmail {
		t.Errorf("Expected email %s, got %s", validEmail, user.Email)
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("Expected non-zero timestamps")
	}

	testCases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"empty email", "", validPassword, ErrEmptyEmail},
		{"invalid email", "invalidemail", validPassword, ErrInvalidEmail},
		{"empty password", validEmail, "", ErrEmptyPassword},
		{"short password", validEmail, "short", ErrPasswordTooShort},
		{"long password", validEmail, string(make([]byte, 73)), ErrPasswordTooLong},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewUser(tc.email, tc.password)
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected error %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUserValidateHashedOnly(t *testing.T) {
	user := User{
		ID:             uuid.New(),
		Email:          "stored@example.com",
		HashedPassword: "$2a$10$abcdefghijklmnopqrstuv",
	}

	if err := user.Validate(); err != nil {
		t.Errorf("Expected persisted user to be valid, got %v", err)
	}

	user.ID = uuid.Nil
	if err := user.Validate(); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("Expected %v, got %v", ErrEmptyUserID, err)
	}
}
