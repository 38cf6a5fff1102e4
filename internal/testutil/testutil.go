// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// MigrationFiles returns the migration files of one direction ("up" or
// "down") in the order they should be applied.
func MigrationFiles(direction string) ([]string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(root, "migrations", "*."+direction+".sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)
	if direction == "down" {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	return files, nil
}

// ResetSchema drops every table and re-applies all migrations.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, direction := range []string{"down", "up"} {
		files, err := MigrationFiles(direction)
		if err != nil {
			return err
		}
		for _, path := range files {
			sql, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", filepath.Base(path), err)
			}
			if _, err := pool.Exec(ctx, string(sql)); err != nil {
				return fmt.Errorf("apply %s: %w", filepath.Base(path), err)
			}
		}
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// NewTestUser creates a free-plan user with a unique username and email.
// PasswordHash is a placeholder; hash a real password where it matters.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	name := strings.ReplaceAll(UniqueID("user"), "-", "_")
	return &model.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "$argon2id$placeholder",
		Role:         model.RoleUser,
		Plan:         model.PlanFree,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestAPIKey creates an API key row for the user, expiring in a year.
func NewTestAPIKey(t testing.TB, userID int64) *model.APIKey {
	t.Helper()
	gen, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate api key: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.APIKey{
		UserID:    userID,
		KeyHash:   gen.Hash,
		KeyPrefix: gen.Prefix,
		CreatedAt: now,
		ExpiresAt: now.AddDate(1, 0, 0),
	}
}

// NewTestCountry creates a fully populated country.
func NewTestCountry(t testing.TB, name string) *model.Country {
	t.Helper()
	return &model.Country{
		Name:      name,
		Capital:   name + " City",
		Currency:  name + " dollar",
		Languages: []string{"English", "French"},
		FlagURL:   "https://flags.example.com/" + strings.ToLower(name) + ".png",
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}
