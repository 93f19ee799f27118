package service

import (
	"fmt"
	"time"

	"github.com/quickmart/quickmart-auth/internal/domain"
)

// RegisterInput is the already-parsed registration command.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Address   string
	Role      string
}

// UpdateProfileInput carries a partial profile update. Nil fields are left
// untouched; password and role are never updated through this path.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
	Email     *string
	Address   *string
}

// UserProfile is the public view of an account. It never carries the
// password hash.
type UserProfile struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Role      string    `json:"role"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
}

func profileOf(user domain.User) UserProfile {
	return UserProfile{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Address:   user.Address,
		Role:      user.Role,
		IsDeleted: user.IsDeleted,
		CreatedAt: user.CreatedAt,
	}
}

// TokenResponse is returned from a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ValidationError reports malformed input caught before any store is
// touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
