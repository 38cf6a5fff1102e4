// Package service provides business logic for the application.
package service

import (
	"context"
	"time"

	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/upstream"
)

// The store interfaces below are satisfied by *repository.Repository.
// Implementations return the repository package's sentinel errors.

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	UpdateUserPlan(ctx context.Context, id int64, plan string) error
	ListUsersWithUsage(ctx context.Context) ([]*model.UserWithUsage, error)
}

// APIKeyStore persists hashed API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id int64) (*model.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	ListAPIKeysByUserID(ctx context.Context, userID int64) ([]*model.APIKey, error)
	DeleteAPIKey(ctx context.Context, id int64) error
	CountAPIKeys(ctx context.Context) (int64, error)
	HasActiveAPIKey(ctx context.Context, userID int64, now time.Time) (bool, error)
}

// UsageStore appends and aggregates usage records.
type UsageStore interface {
	InsertUsage(ctx context.Context, rec *model.UsageRecord) error
	CountUsageBetween(ctx context.Context, userID int64, from, to time.Time) (int64, error)
	UsageByEndpoint(ctx context.Context, userID int64) ([]model.EndpointUsage, error)
}

// CountryStore persists resolved countries.
type CountryStore interface {
	GetCountryByName(ctx context.Context, name string) (*model.Country, error)
	UpsertCountry(ctx context.Context, c *model.Country) error
}

// CountryCache is the optional hot tier in front of CountryStore.
// Satisfied by *cache.Cache.
type CountryCache interface {
	GetCountry(ctx context.Context, name string) (*model.Country, error)
	SetCountry(ctx context.Context, c *model.Country) error
	SetCountryAlias(ctx context.Context, alias string, c *model.Country) error
	IsNegativelyCached(ctx context.Context, name string) (bool, error)
	SetNegativeCache(ctx context.Context, name string) error
}

// CountryFetcher is the external source consulted on a miss.
// Satisfied by *upstream.Client.
type CountryFetcher interface {
	FetchCountry(ctx context.Context, name string) (*upstream.RawCountry, error)
}

// utcNow is the default clock. Stored times are truncated to the
// precision PostgreSQL keeps.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
