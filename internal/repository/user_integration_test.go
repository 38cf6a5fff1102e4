//go:build integration

package repository

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/testutil"
)

func TestIntegrationUserRepository_CreateAndLookup(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t)
	user.Email = strings.ToUpper(user.Username) + "@Example.com"
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("CreateUser should assign an ID")
	}

	tests := []struct {
		name       string
		identifier string
	}{
		{"username", user.Username},
		{"email exact", user.Email},
		{"email other case", strings.ToLower(user.Email)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetUserByIdentifier(ctx, tt.identifier)
			if err != nil {
				t.Fatalf("GetUserByIdentifier(%q) failed: %v", tt.identifier, err)
			}
			if got.ID != user.ID || got.Role != model.RoleUser || got.Plan != model.PlanFree {
				t.Errorf("got %+v, want user %d", got, user.ID)
			}
		})
	}

	if _, err := repo.GetUserByIdentifier(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
	if _, err := repo.GetUserByID(ctx, 987654); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationUserRepository_Duplicates(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	sameName := testutil.NewTestUser(t)
	sameName.Username = user.Username
	if err := repo.CreateUser(ctx, sameName); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("Expected ErrUsernameExists, got: %v", err)
	}

	sameEmail := testutil.NewTestUser(t)
	sameEmail.Email = strings.ToUpper(user.Email)
	if err := repo.CreateUser(ctx, sameEmail); !errors.Is(err, ErrEmailExists) {
		t.Errorf("Expected ErrEmailExists, got: %v", err)
	}
}

func TestIntegrationUserRepository_UpdatePlan(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	user := mustCreateUser(t, ctx, repo)

	if err := repo.UpdateUserPlan(ctx, user.ID, model.PlanPaid); err != nil {
		t.Fatalf("UpdateUserPlan failed: %v", err)
	}
	got, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if got.Plan != model.PlanPaid {
		t.Errorf("Plan = %q, want %q", got.Plan, model.PlanPaid)
	}

	if err := repo.UpdateUserPlan(ctx, 987654, model.PlanPaid); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationUserRepository_ListWithUsage(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)
	busy := mustCreateUser(t, ctx, repo)
	idle := mustCreateUser(t, ctx, repo)

	now := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		rec := &model.UsageRecord{
			ID:        ulid.Make().String(),
			UserID:    busy.ID,
			Endpoint:  "/api/country",
			CreatedAt: now.Add(time.Duration(-i) * time.Minute),
		}
		if err := repo.InsertUsage(ctx, rec); err != nil {
			t.Fatalf("InsertUsage failed: %v", err)
		}
	}

	users, err := repo.ListUsersWithUsage(ctx)
	if err != nil {
		t.Fatalf("ListUsersWithUsage failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("Expected 2 users, got %d", len(users))
	}

	byID := map[int64]*model.UserWithUsage{}
	for _, u := range users {
		byID[u.User.ID] = u
	}
	if got := byID[busy.ID]; got.UsageCount != 3 || got.LastUsed == nil || !got.LastUsed.Equal(now) {
		t.Errorf("busy user = %+v, want 3 calls last at %v", got, now)
	}
	if got := byID[idle.ID]; got.UsageCount != 0 || got.LastUsed != nil {
		t.Errorf("idle user = %+v, want no usage", got)
	}
}
