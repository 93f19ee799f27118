package domain

import "errors"

var (
	// ErrEmailTaken signals a registration or profile update against an email
	// another account already holds.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrRoleExists signals creation of a role name that is already present.
	ErrRoleExists = errors.New("auth: role already exists")
	// ErrUserNotFound signals that no user row matches the given ID or email.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrRoleNotFound signals assignment of a role that was never created.
	ErrRoleNotFound = errors.New("auth: role not found")
	// ErrInvalidCredentials is deliberately shared between unknown-email and
	// wrong-password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidResetToken covers expired, mismatched, and already-consumed
	// password reset tokens.
	ErrInvalidResetToken = errors.New("auth: invalid or expired reset token")
)
