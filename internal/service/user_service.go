// Package service composes the stores, the credential hasher, the token
// generator, and the notifier into the account workflows the transport layer
// consumes. It speaks typed outcomes, never HTTP status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/quickmart/quickmart-auth/internal/domain"
	"github.com/quickmart/quickmart-auth/internal/jwt"
	"github.com/quickmart/quickmart-auth/internal/notifier"
	"github.com/quickmart/quickmart-auth/internal/password"
	"github.com/quickmart/quickmart-auth/internal/repository"
)

const minPasswordLen = 6

// UserService encapsulates registration, authentication, role management,
// soft deletion, and the password reset lifecycle.
type UserService struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	resets *ResetTokenService
	tokens *jwt.Generator
	mail   notifier.Notifier
	node   *snowflake.Node
	logger *zap.Logger
	tracer trace.Tracer

	defaultRole  string
	resetBaseURL string
}

// NewUserService wires dependencies by construction; there is no ambient
// identity manager.
func NewUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	resets *ResetTokenService,
	tokens *jwt.Generator,
	mail notifier.Notifier,
	node *snowflake.Node,
	defaultRole string,
	resetBaseURL string,
	logger *zap.Logger,
) *UserService {
	if defaultRole == "" {
		defaultRole = "User"
	}
	return &UserService{
		users:        users,
		roles:        roles,
		resets:       resets,
		tokens:       tokens,
		mail:         mail,
		node:         node,
		logger:       logger,
		tracer:       otel.Tracer("github.com/quickmart/quickmart-auth/internal/service"),
		defaultRole:  defaultRole,
		resetBaseURL: strings.TrimRight(resetBaseURL, "/"),
	}
}

// Register creates an account with the requested (or default) role. The role
// is resolved before the insert and written in the same statement, so a
// failed role lookup can never leave a roleless user behind, and duplicate
// emails are rejected by the store's uniqueness constraint rather than a
// read-then-write check.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (UserProfile, error) {
	ctx, span := s.startSpan(ctx, "UserService.Register")
	defer span.End()

	email := normalizeEmail(in.Email)
	if email == "" {
		return UserProfile{}, invalid("email", "is required")
	}
	if len(in.Password) < minPasswordLen {
		return UserProfile{}, invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return UserProfile{}, invalid("name", "first and last name are required")
	}

	roleName := strings.TrimSpace(in.Role)
	if roleName == "" {
		roleName = s.defaultRole
	}
	exists, err := s.roles.Exists(ctx, roleName)
	if err != nil {
		span.RecordError(err)
		return UserProfile{}, fmt.Errorf("check role: %w", err)
	}
	if !exists {
		return UserProfile{}, domain.ErrRoleNotFound
	}

	hash, err := password.Hash(in.Password)
	if err != nil {
		span.RecordError(err)
		return UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           s.node.Generate().Int64(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PasswordHash: hash,
		Address:      strings.TrimSpace(in.Address),
		Role:         roleName,
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if !errors.Is(err, domain.ErrEmailTaken) {
			span.RecordError(err)
		}
		return UserProfile{}, err
	}

	s.audit("user.registered", "user_id", created.ID, "role", created.Role)
	return profileOf(created), nil
}

// Authenticate verifies credentials and issues a bearer token. Unknown email
// and wrong password collapse into the same outcome so callers cannot probe
// which addresses are registered.
func (s *UserService) Authenticate(ctx context.Context, email, plaintext string) (TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "UserService.Authenticate")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return TokenResponse{}, domain.ErrInvalidCredentials
		}
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.IsDeleted {
		return TokenResponse{}, domain.ErrInvalidCredentials
	}

	ok, err := password.Verify(plaintext, user.PasswordHash)
	if err != nil {
		// Corrupt stored hash is an operator problem, not a caller one.
		span.RecordError(err)
		s.log().Error("stored credential unverifiable", zap.Int64("user_id", user.ID), zap.Error(err))
		return TokenResponse{}, fmt.Errorf("verify credential: %w", err)
	}
	if !ok {
		return TokenResponse{}, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}

	s.audit("user.login", "user_id", user.ID, "role", user.Role)
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.TTL() / time.Second),
	}, nil
}

// GetByID returns the public view of an account, soft-deleted or not.
func (s *UserService) GetByID(ctx context.Context, userID int64) (UserProfile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserProfile{}, err
	}
	return profileOf(user), nil
}

// ListUsers lists accounts, optionally hiding soft-deleted rows.
func (s *UserService) ListUsers(ctx context.Context, excludeSoftDeleted bool) ([]UserProfile, error) {
	users, err := s.users.List(ctx, excludeSoftDeleted)
	if err != nil {
		return nil, err
	}
	return profilesOf(users), nil
}

// ListSoftDeleted lists only soft-deleted accounts, for administrative
// recovery.
func (s *UserService) ListSoftDeleted(ctx context.Context) ([]UserProfile, error) {
	users, err := s.users.ListSoftDeleted(ctx)
	if err != nil {
		return nil, err
	}
	return profilesOf(users), nil
}

// UpdateProfile applies a partial update to name, email, and address. It
// never touches the password hash or the role.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (UserProfile, error) {
	ctx, span := s.startSpan(ctx, "UserService.UpdateProfile")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserProfile{}, err
	}

	if in.FirstName != nil {
		if strings.TrimSpace(*in.FirstName) == "" {
			return UserProfile{}, invalid("first_name", "must not be empty")
		}
		user.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		if strings.TrimSpace(*in.LastName) == "" {
			return UserProfile{}, invalid("last_name", "must not be empty")
		}
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email == "" {
			return UserProfile{}, invalid("email", "must not be empty")
		}
		user.Email = email
	}
	if in.Address != nil {
		user.Address = strings.TrimSpace(*in.Address)
	}

	updated, err := s.users.UpdateProfile(ctx, user)
	if err != nil {
		if !errors.Is(err, domain.ErrEmailTaken) && !errors.Is(err, domain.ErrUserNotFound) {
			span.RecordError(err)
		}
		return UserProfile{}, err
	}
	return profileOf(updated), nil
}

// SoftDelete marks the account deleted. Repeating the call on an already
// soft-deleted user succeeds; only a truly unknown ID reports not-found.
func (s *UserService) SoftDelete(ctx context.Context, userID int64) error {
	ctx, span := s.startSpan(ctx, "UserService.SoftDelete")
	defer span.End()

	if err := s.users.SoftDelete(ctx, userID); err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			span.RecordError(err)
		}
		return err
	}
	s.audit("user.soft_deleted", "user_id", userID)
	return nil
}

// CreateRole adds a role name. The store's unique constraint rejects
// duplicates.
func (s *UserService) CreateRole(ctx context.Context, name string) (domain.Role, error) {
	ctx, span := s.startSpan(ctx, "UserService.CreateRole")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Role{}, invalid("role", "is required")
	}

	role, err := s.roles.Create(ctx, domain.Role{ID: s.node.Generate().Int64(), Name: name})
	if err != nil {
		if !errors.Is(err, domain.ErrRoleExists) {
			span.RecordError(err)
		}
		return domain.Role{}, err
	}
	s.audit("role.created", "role", role.Name)
	return role, nil
}

// ListRoles returns every defined role.
func (s *UserService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// AssignRole points the user at an existing role.
func (s *UserService) AssignRole(ctx context.Context, userID int64, roleName string) error {
	ctx, span := s.startSpan(ctx, "UserService.AssignRole")
	defer span.End()

	roleName = strings.TrimSpace(roleName)
	exists, err := s.roles.Exists(ctx, roleName)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("check role: %w", err)
	}
	if !exists {
		return domain.ErrRoleNotFound
	}

	if err := s.users.UpdateRole(ctx, userID, roleName); err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			span.RecordError(err)
		}
		return err
	}
	s.audit("role.assigned", "user_id", userID, "role", roleName)
	return nil
}

// RequestPasswordReset mints a reset token and mails the reset link. An
// unknown email is a silent no-op toward the caller so responses cannot be
// used for account enumeration; generation and delivery failures surface as
// real errors for operators.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := s.startSpan(ctx, "UserService.RequestPasswordReset")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log().Debug("password reset requested for unknown email")
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("lookup user: %w", err)
	}

	token, err := s.resets.Generate(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s&email=%s",
		s.resetBaseURL, url.QueryEscape(token), url.QueryEscape(user.Email))
	body := fmt.Sprintf(`Click the link to reset your password: <a href="%s">%s</a>`, link, link)

	if err := s.mail.Send(ctx, user.Email, "Password Reset", body); err != nil {
		span.RecordError(err)
		return fmt.Errorf("send reset email: %w", err)
	}

	s.audit("password_reset.requested", "user_id", user.ID)
	return nil
}

// ResetPassword consumes the token and stores the new hash. A wrong, expired,
// or reused token is a typed outcome, not an internal failure.
func (s *UserService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	ctx, span := s.startSpan(ctx, "UserService.ResetPassword")
	defer span.End()

	if len(newPassword) < minPasswordLen {
		return invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrUserNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.resets.ValidateAndConsume(ctx, user.ID, token)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		return domain.ErrInvalidResetToken
	}

	hash, err := password.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		span.RecordError(err)
		return err
	}

	s.audit("password_reset.completed", "user_id", user.ID)
	return nil
}

func profilesOf(users []domain.User) []UserProfile {
	profiles := make([]UserProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, profileOf(u))
	}
	return profiles
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *UserService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *UserService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
