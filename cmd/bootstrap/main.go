// Command bootstrap creates an admin account if needed and prints a fresh
// API key for it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/metrics"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/repository"
	"github.com/atlasgate/atlasgate/internal/service"
)

type output struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Plan      string    `json:"plan"`
	KeyID     int64     `json:"key_id"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"key_prefix"`
	ExpiresAt time.Time `json:"expires_at"`
}

// userStore is the part of the repository bootstrap touches.
type userStore interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		username    = flag.String("username", "admin", "Admin username")
		email       = flag.String("email", "admin@atlasgate.local", "Admin email")
		password    = flag.String("password", os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"), "Admin password, used only when the account is created")
		plan        = flag.String("plan", model.PlanPaid, "Plan for a newly created admin")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	user, err := ensureAdmin(ctx, repo, *username, *email, *password, *plan)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys := service.NewAPIKeyService(repo, repo, logger, metrics.NewNoop())
	issued, err := keys.Issue(ctx, user.ID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue api key:", err)
		os.Exit(1)
	}

	out := output{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Plan:      user.Plan,
		KeyID:     issued.Key.ID,
		Key:       issued.Plaintext,
		KeyPrefix: issued.Key.KeyPrefix,
		ExpiresAt: issued.Key.ExpiresAt,
	}

	if err := writeOutput(os.Stdout, *format, out); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// ensureAdmin returns the admin named by username, creating it when no
// account with that username exists. An existing non-admin is an error.
func ensureAdmin(ctx context.Context, users userStore, username, email, password, plan string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" {
		return nil, errors.New("username and email are required")
	}

	existing, err := users.GetUserByIdentifier(ctx, username)
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			return nil, fmt.Errorf("user %s exists without the admin role", username)
		}
		return existing, nil
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if password == "" {
		return nil, errors.New("password is required to create the admin account")
	}
	if !model.IsKnownPlan(plan) {
		return nil, fmt.Errorf("invalid plan: %s", plan)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Plan:         plan,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func writeOutput(w io.Writer, format string, out output) error {
	switch strings.ToLower(format) {
	case "plain":
		_, err := fmt.Fprintln(w, out.Key)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		return errors.New("invalid format; use plain or json")
	}
}
