package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atlasgate/atlasgate/internal/model"
)

// Cache key prefixes and TTLs.
const (
	countryKeyPrefix  = "country:"
	negCacheKeySuffix = ":neg"

	// NegativeCacheTTL bounds how long an upstream "not found" is remembered.
	NegativeCacheTTL = 5 * time.Minute

	languageSeparator = ","
)

// countryKey is the namespace-relative key for a lookup name.
func countryKey(name string) string {
	return countryKeyPrefix + model.NormalizeCountryName(name)
}

// GetCountry retrieves a country from cache by name, case-insensitively.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetCountry(ctx context.Context, name string) (*model.Country, error) {
	result, err := c.client.HGetAll(ctx, c.key(countryKey(name))).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	country := &model.Country{
		Name:     result["name"],
		Capital:  result["capital"],
		Currency: result["currency"],
		FlagURL:  result["flag"],
	}
	if langs := result["languages"]; langs != "" {
		country.Languages = strings.Split(langs, languageSeparator)
	}
	if ts := result["updated_at"]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			country.UpdatedAt = t
		}
	}

	return country, nil
}

// SetCountry stores a country in cache under its own name with no expiry.
// Entries are replaced by the next write for the same name.
func (c *Cache) SetCountry(ctx context.Context, country *model.Country) error {
	return c.setCountryAt(ctx, country.Name, country)
}

// SetCountryAlias stores a country under a lookup name other than its own,
// so non-canonical queries such as "Deutschland" hit the cache next time.
func (c *Cache) SetCountryAlias(ctx context.Context, alias string, country *model.Country) error {
	return c.setCountryAt(ctx, alias, country)
}

func (c *Cache) setCountryAt(ctx context.Context, name string, country *model.Country) error {
	key := c.key(countryKey(name))

	fields := map[string]any{
		"name":       country.Name,
		"capital":    country.Capital,
		"currency":   country.Currency,
		"languages":  strings.Join(country.Languages, languageSeparator),
		"flag":       country.FlagURL,
		"updated_at": country.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache country: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a name was recently reported unknown upstream.
func (c *Cache) IsNegativelyCached(ctx context.Context, name string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.key(countryKey(name)+negCacheKeySuffix)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a name as unknown upstream for NegativeCacheTTL.
func (c *Cache) SetNegativeCache(ctx context.Context, name string) error {
	err := c.client.SetEx(ctx, c.key(countryKey(name)+negCacheKeySuffix), "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
