package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atlasgate/atlasgate/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
)

const userColumns = `id, username, email, password_hash, role, plan, created_at`

// CreateUser inserts a new user and fills in the generated ID.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, role, plan, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Plan,
		user.CreatedAt,
	).Scan(&user.ID)

	if err != nil {
		if isUniqueViolation(err) {
			if _, constraint := pgErrorCode(err); constraint == "idx_users_username" {
				return ErrUsernameExists
			}
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get user by ID: %w", err)
	}
	return user, nil
}

// GetUserByIdentifier retrieves a user by username or email.
// Email matching is case-insensitive; usernames match exactly.
func (r *Repository) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1 OR lower(email) = lower($1)
		ORDER BY (username = $1) DESC
		LIMIT 1
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, identifier))
	if err != nil {
		return nil, fmt.Errorf("get user by identifier: %w", err)
	}
	return user, nil
}

// UpdateUserPlan changes a user's plan.
func (r *Repository) UpdateUserPlan(ctx context.Context, id int64, plan string) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET plan = $2 WHERE id = $1`, id, plan)
	if err != nil {
		return fmt.Errorf("failed to update user plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsersWithUsage returns every user with their all-time usage totals,
// newest users first.
func (r *Repository) ListUsersWithUsage(ctx context.Context) ([]*model.UserWithUsage, error) {
	query := `
		SELECT u.id, u.username, u.email, u.password_hash, u.role, u.plan, u.created_at,
		       COUNT(ur.id) AS usage_count,
		       MAX(ur.created_at) AS last_used
		FROM users u
		LEFT JOIN usage_records ur ON ur.user_id = u.id
		GROUP BY u.id
		ORDER BY u.created_at DESC, u.id DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.UserWithUsage
	for rows.Next() {
		var (
			u        model.UserWithUsage
			role     string
			lastUsed *time.Time
		)
		if err := rows.Scan(
			&u.User.ID,
			&u.User.Username,
			&u.User.Email,
			&u.User.PasswordHash,
			&role,
			&u.User.Plan,
			&u.User.CreatedAt,
			&u.UsageCount,
			&lastUsed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.User.Role = model.Role(role)
		u.LastUsed = lastUsed
		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user model.User
		role string
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.Plan,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.Role = model.Role(role)
	return &user, nil
}
