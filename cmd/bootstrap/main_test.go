package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/repository"
)

type memUsers struct {
	users   map[string]*model.User
	created int
}

func (m *memUsers) GetUserByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	if u, ok := m.users[identifier]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("get user by identifier: %w", repository.ErrUserNotFound)
}

func (m *memUsers) CreateUser(_ context.Context, user *model.User) error {
	m.created++
	user.ID = int64(len(m.users) + 1)
	m.users[user.Username] = user
	return nil
}

func TestEnsureAdmin_CreatesWhenMissing(t *testing.T) {
	store := &memUsers{users: map[string]*model.User{}}

	user, err := ensureAdmin(context.Background(), store, " root ", "Root@Example.com", "s3cret-pass", model.PlanPaid)
	if err != nil {
		t.Fatalf("ensureAdmin failed: %v", err)
	}

	if store.created != 1 {
		t.Fatalf("created = %d, want 1", store.created)
	}
	if user.Username != "root" || user.Email != "root@example.com" {
		t.Errorf("user = %s/%s, want trimmed and lowercased", user.Username, user.Email)
	}
	if !user.IsAdmin() {
		t.Error("created user should be admin")
	}
	ok, err := auth.VerifyPassword("s3cret-pass", user.PasswordHash)
	if err != nil || !ok {
		t.Errorf("password hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestEnsureAdmin_ReusesExistingAdmin(t *testing.T) {
	existing := &model.User{ID: 7, Username: "root", Email: "root@example.com", Role: model.RoleAdmin, Plan: model.PlanPaid}
	store := &memUsers{users: map[string]*model.User{"root": existing}}

	user, err := ensureAdmin(context.Background(), store, "root", "root@example.com", "", model.PlanPaid)
	if err != nil {
		t.Fatalf("ensureAdmin failed: %v", err)
	}
	if user.ID != 7 || store.created != 0 {
		t.Errorf("expected existing admin to be reused, got id=%d created=%d", user.ID, store.created)
	}
}

func TestEnsureAdmin_Errors(t *testing.T) {
	tests := []struct {
		name     string
		users    map[string]*model.User
		username string
		password string
		plan     string
		wantErr  string
	}{
		{
			name:     "existing non-admin",
			users:    map[string]*model.User{"bob": {ID: 1, Username: "bob", Role: model.RoleUser}},
			username: "bob",
			password: "pw",
			plan:     model.PlanFree,
			wantErr:  "without the admin role",
		},
		{name: "missing password", username: "root", plan: model.PlanPaid, wantErr: "password is required"},
		{name: "unknown plan", username: "root", password: "pw", plan: "gold", wantErr: "invalid plan"},
		{name: "missing username", username: "  ", password: "pw", plan: model.PlanPaid, wantErr: "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := tt.users
			if users == nil {
				users = map[string]*model.User{}
			}
			_, err := ensureAdmin(context.Background(), &memUsers{users: users}, tt.username, "root@example.com", tt.password, tt.plan)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

type failingUsers struct{ memUsers }

func (f *failingUsers) GetUserByIdentifier(context.Context, string) (*model.User, error) {
	return nil, errors.New("connection refused")
}

func TestEnsureAdmin_LookupFailure(t *testing.T) {
	_, err := ensureAdmin(context.Background(), &failingUsers{}, "root", "root@example.com", "pw", model.PlanPaid)
	if err == nil || !strings.Contains(err.Error(), "look up user") {
		t.Errorf("err = %v, want lookup failure", err)
	}
}

func TestWriteOutput(t *testing.T) {
	out := output{UserID: 1, Key: "ak_0123abcd_0123456789abcdef0123456789abcdef"}

	var plain bytes.Buffer
	if err := writeOutput(&plain, "plain", out); err != nil {
		t.Fatalf("plain: %v", err)
	}
	if plain.String() != out.Key+"\n" {
		t.Errorf("plain = %q", plain.String())
	}

	var js bytes.Buffer
	if err := writeOutput(&js, "JSON", out); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded output
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Key != out.Key || decoded.UserID != 1 {
		t.Errorf("decoded = %+v", decoded)
	}

	if err := writeOutput(&js, "xml", out); err == nil {
		t.Error("expected error for unknown format")
	}
}
