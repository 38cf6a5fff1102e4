package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/atlasgate/atlasgate/internal/model"
)

// ErrCountryNotFound is returned when no stored country matches a name.
var ErrCountryNotFound = errors.New("country not found")

// GetCountryByName retrieves a stored country, matching the name
// case-insensitively.
func (r *Repository) GetCountryByName(ctx context.Context, name string) (*model.Country, error) {
	query := `
		SELECT name, capital, currency, languages, flag_url, updated_at
		FROM countries
		WHERE lower(name) = lower($1)
	`

	var (
		c         model.Country
		languages []string
	)
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&c.Name,
		&c.Capital,
		&c.Currency,
		pq.Array(&languages),
		&c.FlagURL,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCountryNotFound
		}
		return nil, fmt.Errorf("failed to get country: %w", err)
	}

	c.Languages = languages
	return &c, nil
}

// UpsertCountry stores a country, replacing any row whose name matches
// case-insensitively. The last write wins.
func (r *Repository) UpsertCountry(ctx context.Context, c *model.Country) error {
	query := `
		INSERT INTO countries (name, capital, currency, languages, flag_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ((lower(name))) DO UPDATE SET
			name       = EXCLUDED.name,
			capital    = EXCLUDED.capital,
			currency   = EXCLUDED.currency,
			languages  = EXCLUDED.languages,
			flag_url   = EXCLUDED.flag_url,
			updated_at = EXCLUDED.updated_at
	`

	languages := c.Languages
	if languages == nil {
		languages = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		c.Name,
		c.Capital,
		c.Currency,
		pq.Array(languages),
		c.FlagURL,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert country: %w", err)
	}

	return nil
}
