package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickmart/quickmart-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository       = (*PostgresUserRepo)(nil)
	_ RoleRepository       = (*PostgresRoleRepo)(nil)
	_ ResetTokenRepository = (*PostgresResetTokenRepo)(nil)
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// PostgresUserRepo implements UserRepository on a pgx pool.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userColumns = `id, first_name, last_name, email, password_hash, address, role, is_deleted, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Address, &u.Role, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const insertUserSQL = `INSERT INTO users (id, first_name, last_name, email, password_hash, address, role)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.Address,
		user.Role,
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) List(ctx context.Context, excludeSoftDeleted bool) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	if excludeSoftDeleted {
		query = `SELECT ` + userColumns + ` FROM users WHERE NOT is_deleted ORDER BY created_at`
	}
	return r.listUsers(ctx, query)
}

func (r *PostgresUserRepo) ListSoftDeleted(ctx context.Context) ([]domain.User, error) {
	return r.listUsers(ctx, `SELECT `+userColumns+` FROM users WHERE is_deleted ORDER BY created_at`)
}

func (r *PostgresUserRepo) listUsers(ctx context.Context, query string) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

const updateProfileSQL = `UPDATE users
SET first_name = $2, last_name = $3, email = $4, address = $5, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, updateProfileSQL,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Address,
	)
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

func (r *PostgresUserRepo) UpdateRole(ctx context.Context, userID int64, roleName string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, userID, roleName)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepo) SoftDelete(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_deleted = TRUE, updated_at = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// PostgresRoleRepo implements RoleRepository.
type PostgresRoleRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRoleRepo(pool *pgxpool.Pool) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: pool}
}

func (r *PostgresRoleRepo) Create(ctx context.Context, role domain.Role) (domain.Role, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO roles (id, name) VALUES ($1, $2) RETURNING id, name, created_at`,
		role.ID, role.Name,
	)
	var created domain.Role
	if err := row.Scan(&created.ID, &created.Name, &created.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Role{}, domain.ErrRoleExists
		}
		return domain.Role{}, fmt.Errorf("create role: %w", err)
	}
	return created, nil
}

func (r *PostgresRoleRepo) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("role exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresRoleRepo) List(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// PostgresResetTokenRepo implements ResetTokenRepository with an explicit
// consumed flag and expiry column.
type PostgresResetTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresResetTokenRepo(pool *pgxpool.Pool) *PostgresResetTokenRepo {
	return &PostgresResetTokenRepo{db: pool}
}

func (r *PostgresResetTokenRepo) Create(ctx context.Context, token domain.PasswordResetToken) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token, issued_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.UserID, token.Token, token.IssuedAt, token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}
	return nil
}

// Consume flips the consumed flag in a single compare-and-set statement, so
// two concurrent attempts with the same token cannot both succeed.
func (r *PostgresResetTokenRepo) Consume(ctx context.Context, userID int64, token string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE password_reset_tokens
		 SET consumed = TRUE
		 WHERE user_id = $1 AND token = $2 AND NOT consumed AND expires_at > now()`,
		userID, token,
	)
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
