// Package bootstrap seeds the baseline roles and the admin account on
// startup so a fresh deployment is usable without manual inserts.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/quickmart/quickmart-auth/internal/config"
	"github.com/quickmart/quickmart-auth/internal/domain"
	"github.com/quickmart/quickmart-auth/internal/password"
	"github.com/quickmart/quickmart-auth/internal/repository"
)

var seedRoles = []string{"Admin", "Manager", "User"}

func containsRole(names []string, name string) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}
	return false
}

// EnsureSeedData registers the seeding step with the fx lifecycle.
func EnsureSeedData(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, roles repository.RoleRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSeedData(ctx, cfg, users, roles, node, logger)
		},
	})
}

func ensureSeedData(ctx context.Context, cfg config.Config, users repository.UserRepository, roles repository.RoleRepository, node *snowflake.Node, logger *zap.Logger) error {
	// The registration default must exist too, or every default
	// registration on a fresh database would fail the role check.
	names := append([]string(nil), seedRoles...)
	if def := strings.TrimSpace(cfg.DefaultRole); def != "" && !containsRole(names, def) {
		names = append(names, def)
	}
	for _, name := range names {
		_, err := roles.Create(ctx, domain.Role{ID: node.Generate().Int64(), Name: name})
		if err != nil && !errors.Is(err, domain.ErrRoleExists) {
			return fmt.Errorf("seed role %q: %w", name, err)
		}
	}

	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || strings.TrimSpace(cfg.AdminPassword) == "" {
		// Admin bootstrap is opt-in; roles alone are enough to run.
		return nil
	}

	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	admin := domain.User{
		ID:           node.Generate().Int64(),
		FirstName:    "Store",
		LastName:     "Admin",
		Email:        email,
		PasswordHash: hashed,
		Role:         "Admin",
	}

	created, err := users.Create(ctx, admin)
	if err != nil {
		// A concurrent replica may have won the insert.
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil
		}
		return fmt.Errorf("bootstrap create admin: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap admin user created",
			zap.String("email", created.Email),
			zap.Int64("user_id", created.ID),
		)
	}
	return nil
}
