package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/atlasgate/atlasgate/internal/model"
)

// InsertUsage appends a usage record. Returns ErrUserNotFound if the user
// does not exist.
func (r *Repository) InsertUsage(ctx context.Context, rec *model.UsageRecord) error {
	query := `
		INSERT INTO usage_records (id, user_id, key_prefix, endpoint, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.KeyPrefix,
		rec.Endpoint,
		rec.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	return nil
}

// CountUsageBetween counts a user's records with from < created_at <= to.
func (r *Repository) CountUsageBetween(ctx context.Context, userID int64, from, to time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM usage_records
		WHERE user_id = $1 AND created_at > $2 AND created_at <= $3
	`

	var n int64
	if err := r.pool.QueryRow(ctx, query, userID, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n, nil
}

// UsageByEndpoint aggregates a user's all-time usage per endpoint,
// busiest first.
func (r *Repository) UsageByEndpoint(ctx context.Context, userID int64) ([]model.EndpointUsage, error) {
	query := `
		SELECT endpoint, COUNT(*) AS count, MAX(created_at) AS last_used
		FROM usage_records
		WHERE user_id = $1
		GROUP BY endpoint
		ORDER BY count DESC, endpoint ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	defer rows.Close()

	stats := make([]model.EndpointUsage, 0)
	for rows.Next() {
		var s model.EndpointUsage
		if err := rows.Scan(&s.Endpoint, &s.Count, &s.LastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage: %w", err)
	}

	return stats, nil
}
