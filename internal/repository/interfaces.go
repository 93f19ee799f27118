package repository

import (
	"context"

	"github.com/quickmart/quickmart-auth/internal/domain"
)

// UserRepository exposes persistence for storefront accounts. Email
// uniqueness is enforced at this boundary (unique index on the lowercased
// email), never by a check-then-insert in the caller.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	List(ctx context.Context, excludeSoftDeleted bool) ([]domain.User, error)
	ListSoftDeleted(ctx context.Context) ([]domain.User, error)
	UpdateProfile(ctx context.Context, user domain.User) (domain.User, error)
	UpdateRole(ctx context.Context, userID int64, roleName string) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	SoftDelete(ctx context.Context, userID int64) error
}

// RoleRepository persists role names and their uniqueness invariant.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) (domain.Role, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]domain.Role, error)
}

// ResetTokenRepository stores password reset tokens. Consume must be atomic:
// under concurrent attempts with the same token at most one call reports
// success.
type ResetTokenRepository interface {
	Create(ctx context.Context, token domain.PasswordResetToken) error
	Consume(ctx context.Context, userID int64, token string) (bool, error)
}
