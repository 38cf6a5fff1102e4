package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/metrics"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/repository"
)

const maxKeyRetries = 3

// IssuedKey is a freshly created key. Plaintext is not recoverable later.
type IssuedKey struct {
	Key       *model.APIKey
	Plaintext string
}

// ToResponse renders the key for the one response that carries it.
func (k *IssuedKey) ToResponse() model.APIKeyCreateResponse {
	return model.APIKeyCreateResponse{
		ID:        k.Key.ID,
		UserID:    k.Key.UserID,
		Key:       k.Plaintext,
		KeyPrefix: k.Key.KeyPrefix,
		CreatedAt: k.Key.CreatedAt,
		ExpiresAt: k.Key.ExpiresAt,
	}
}

// APIKeyService issues, lists, revokes and verifies API keys.
// Key validity is never cached; a revoked key fails on the next request.
type APIKeyService struct {
	keys    APIKeyStore
	users   UserStore
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewAPIKeyService creates a new APIKeyService.
func NewAPIKeyService(keys APIKeyStore, users UserStore, logger *slog.Logger, recorder metrics.Recorder) *APIKeyService {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &APIKeyService{
		keys:    keys,
		users:   users,
		logger:  logger.With("component", "apikey"),
		metrics: recorder,
		now:     utcNow,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *APIKeyService) WithClock(now func() time.Time) *APIKeyService {
	s.now = now
	return s
}

// Issue creates a key for the user expiring exactly one year after issuance.
func (s *APIKeyService) Issue(ctx context.Context, userID int64) (*IssuedKey, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, persistenceError("load user", err)
	}

	for attempt := 1; ; attempt++ {
		gen, err := auth.GenerateAPIKey()
		if err != nil {
			return nil, fmt.Errorf("generate api key: %w", err)
		}

		now := s.now()
		key := &model.APIKey{
			UserID:    userID,
			KeyHash:   gen.Hash,
			KeyPrefix: gen.Prefix,
			CreatedAt: now,
			ExpiresAt: now.AddDate(1, 0, 0),
		}

		err = s.keys.CreateAPIKey(ctx, key)
		switch {
		case err == nil:
			s.metrics.IncAPIKeyIssued()
			s.logger.Info("api key issued",
				slog.Int64("key_id", key.ID),
				slog.String("key_prefix", key.KeyPrefix),
				slog.Int64("user_id", userID),
			)
			return &IssuedKey{Key: key, Plaintext: gen.Plaintext}, nil
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUnknownUser
		case errors.Is(err, repository.ErrAPIKeyExists) && attempt < maxKeyRetries:
			continue
		default:
			return nil, persistenceError("create api key", err)
		}
	}
}

// EnsureLoginKey issues a key only when the user holds no unexpired key.
// It returns nil when an active key already exists.
func (s *APIKeyService) EnsureLoginKey(ctx context.Context, userID int64) (*IssuedKey, error) {
	active, err := s.keys.HasActiveAPIKey(ctx, userID, s.now())
	if err != nil {
		return nil, persistenceError("check active key", err)
	}
	if active {
		return nil, nil
	}
	return s.Issue(ctx, userID)
}

// List returns every key of the user, expired ones included, newest first.
func (s *APIKeyService) List(ctx context.Context, userID int64) ([]*model.APIKey, error) {
	keys, err := s.keys.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		return nil, persistenceError("list api keys", err)
	}
	if keys == nil {
		keys = []*model.APIKey{}
	}
	return keys, nil
}

// Get returns one key by ID.
func (s *APIKeyService) Get(ctx context.Context, keyID int64) (*model.APIKey, error) {
	key, err := s.keys.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, persistenceError("get api key", err)
	}
	return key, nil
}

// Revoke deletes a key.
func (s *APIKeyService) Revoke(ctx context.Context, keyID int64) error {
	if err := s.keys.DeleteAPIKey(ctx, keyID); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return ErrKeyNotFound
		}
		return persistenceError("delete api key", err)
	}

	s.metrics.IncAPIKeyRevoked()
	s.logger.Info("api key revoked", slog.Int64("key_id", keyID))
	return nil
}

// RevokeAs deletes a key on behalf of an actor. Non-admins may only revoke
// their own keys; anyone else's key reports ErrKeyNotFound.
func (s *APIKeyService) RevokeAs(ctx context.Context, keyID, actorID int64, admin bool) error {
	if !admin {
		key, err := s.Get(ctx, keyID)
		if err != nil {
			return err
		}
		if key.UserID != actorID {
			return ErrKeyNotFound
		}
	}
	return s.Revoke(ctx, keyID)
}

// Authenticate resolves a presented plaintext key to its owner.
// Malformed, unknown and expired keys all yield ErrInvalidAPIKey.
func (s *APIKeyService) Authenticate(ctx context.Context, plaintext string) (*model.AuthContext, error) {
	if !auth.ValidateKeyFormat(plaintext) {
		return nil, ErrInvalidAPIKey
	}

	hash := auth.HashAPIKey(plaintext)
	key, err := s.keys.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, persistenceError("lookup api key", err)
	}

	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, ErrInvalidAPIKey
	}
	if key.IsExpired(s.now()) {
		return nil, ErrInvalidAPIKey
	}

	user, err := s.users.GetUserByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, persistenceError("load key owner", err)
	}

	return &model.AuthContext{
		KeyID:     key.ID,
		KeyPrefix: key.KeyPrefix,
		UserID:    user.ID,
		Role:      user.Role,
		Plan:      user.Plan,
	}, nil
}

// TotalKeys counts stored keys across all users.
func (s *APIKeyService) TotalKeys(ctx context.Context) (int64, error) {
	n, err := s.keys.CountAPIKeys(ctx)
	if err != nil {
		return 0, persistenceError("count api keys", err)
	}
	return n, nil
}
