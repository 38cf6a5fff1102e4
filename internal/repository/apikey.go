package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atlasgate/atlasgate/internal/model"
)

// Common errors for API key repository operations.
var (
	ErrAPIKeyNotFound = errors.New("API key not found")
	ErrAPIKeyExists   = errors.New("API key already exists")
)

const apiKeyColumns = `id, user_id, key_hash, key_prefix, created_at, expires_at`

// CreateAPIKey inserts a new API key and fills in the generated ID.
// Returns ErrUserNotFound if the owner does not exist.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (user_id, key_hash, key_prefix, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		key.UserID,
		key.KeyHash,
		key.KeyPrefix,
		key.CreatedAt,
		key.ExpiresAt,
	).Scan(&key.ID)

	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return ErrUserNotFound
		case isUniqueViolation(err):
			return ErrAPIKeyExists
		}
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetAPIKeyByID retrieves an API key by its ID.
func (r *Repository) GetAPIKeyByID(ctx context.Context, id int64) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanAPIKey(r.pool.QueryRow(ctx, query, id))
}

// GetAPIKeyByHash retrieves an API key by the digest of its plaintext.
func (r *Repository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	return scanAPIKey(r.pool.QueryRow(ctx, query, keyHash))
}

// ListAPIKeysByUserID retrieves all API keys for a user, newest first.
// Expired keys are included.
func (r *Repository) ListAPIKeysByUserID(ctx context.Context, userID int64) ([]*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}

	return keys, nil
}

// DeleteAPIKey removes an API key permanently.
func (r *Repository) DeleteAPIKey(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// CountAPIKeys returns the number of stored API keys across all users.
func (r *Repository) CountAPIKeys(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count API keys: %w", err)
	}
	return n, nil
}

// HasActiveAPIKey reports whether the user owns a key that has not expired
// at the given time.
func (r *Repository) HasActiveAPIKey(ctx context.Context, userID int64, now time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM api_keys WHERE user_id = $1 AND expires_at > $2)`

	var ok bool
	if err := r.pool.QueryRow(ctx, query, userID, now).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check active API key: %w", err)
	}
	return ok, nil
}

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey

	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.KeyHash,
		&key.KeyPrefix,
		&key.CreatedAt,
		&key.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan API key: %w", err)
	}

	return &key, nil
}
