package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/metrics"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/repository"
)

const minPasswordLen = 6

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Plan     string
}

// LoginResult is returned by a successful authentication.
// APIKey is nil when the user already holds an active key.
type LoginResult struct {
	User      *model.User
	Session   *auth.Session
	CSRFToken string
	APIKey    *IssuedKey
}

// APIKeyIssued reports whether the login minted a new key.
func (r *LoginResult) APIKeyIssued() bool {
	return r.APIKey != nil
}

// AuthService authenticates users and issues session and CSRF tokens.
// Sessions are stateless: validation never touches the store.
type AuthService struct {
	users        UserStore
	keys         *APIKeyService
	sessions     *auth.SessionManager
	securityCode string
	logger       *slog.Logger
	metrics      metrics.Recorder
	now          func() time.Time
}

// NewAuthService creates a new AuthService. An empty securityCode disables
// admin registration.
func NewAuthService(users UserStore, keys *APIKeyService, sessions *auth.SessionManager, securityCode string, logger *slog.Logger, recorder metrics.Recorder) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AuthService{
		users:        users,
		keys:         keys,
		sessions:     sessions,
		securityCode: securityCode,
		logger:       logger.With("component", "auth"),
		metrics:      recorder,
		now:          utcNow,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Register creates a regular user account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	return s.register(ctx, in, model.RoleUser)
}

// RegisterAdmin creates an admin account when securityCode matches the
// configured code.
func (s *AuthService) RegisterAdmin(ctx context.Context, in RegisterInput, securityCode string) (*model.User, error) {
	if s.securityCode == "" || subtle.ConstantTimeCompare([]byte(securityCode), []byte(s.securityCode)) != 1 {
		s.logger.Warn("admin registration rejected", slog.String("username", in.Username))
		return nil, ErrInvalidSecurityCode
	}
	return s.register(ctx, in, model.RoleAdmin)
}

func (s *AuthService) register(ctx context.Context, in RegisterInput, role model.Role) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Plan = strings.ToLower(strings.TrimSpace(in.Plan))
	if in.Plan == "" {
		in.Plan = model.DefaultPlan
	}

	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		Plan:         in.Plan,
		CreatedAt:    s.now(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailTaken
		default:
			return nil, persistenceError("create user", err)
		}
	}

	s.logger.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("role", string(role)),
		slog.String("plan", user.Plan),
	)
	return user, nil
}

func validateRegistration(in RegisterInput) error {
	if !usernamePattern.MatchString(in.Username) {
		return inputError("username must be 3-32 characters of letters, digits, '_', '.' or '-'")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return inputError("email is not a valid address")
	}
	if len(in.Password) < minPasswordLen {
		return inputError("password must be at least 6 characters")
	}
	if !model.IsKnownPlan(in.Plan) {
		return ErrInvalidPlan
	}
	return nil
}

// Authenticate verifies credentials for a username or email and issues a
// session token, an independent CSRF token and, if the user has no active
// key, a fresh API key.
func (s *AuthService) Authenticate(ctx context.Context, identifier, password string) (*LoginResult, error) {
	return s.authenticate(ctx, identifier, password, false)
}

// AuthenticateAdmin is Authenticate restricted to admin accounts.
func (s *AuthService) AuthenticateAdmin(ctx context.Context, identifier, password string) (*LoginResult, error) {
	return s.authenticate(ctx, identifier, password, true)
}

func (s *AuthService) authenticate(ctx context.Context, identifier, password string, adminOnly bool) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		s.metrics.IncLogin(metrics.StatusFailure)
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			auth.VerifyDummy(password)
			s.metrics.IncLogin(metrics.StatusFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, persistenceError("load user", err)
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	if !ok || (adminOnly && !user.IsAdmin()) {
		s.metrics.IncLogin(metrics.StatusFailure)
		return nil, ErrInvalidCredentials
	}

	sess, err := s.sessions.Issue(user)
	if err != nil {
		return nil, err
	}

	key, err := s.keys.EnsureLoginKey(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.IncLogin(metrics.StatusSuccess)
	s.logger.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.Bool("api_key_issued", key != nil),
	)

	return &LoginResult{
		User:      user,
		Session:   sess,
		CSRFToken: auth.NewCSRFToken(),
		APIKey:    key,
	}, nil
}

// ValidateSession checks a session token's signature and expiry.
func (s *AuthService) ValidateSession(token string) (*auth.SessionClaims, error) {
	claims, err := s.sessions.Validate(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// ValidateCSRF reports whether the request token matches the reference.
// Either token missing means false.
func (s *AuthService) ValidateCSRF(requestToken, referenceToken string) bool {
	return auth.ValidateCSRF(requestToken, referenceToken)
}

// CheckCSRF is ValidateCSRF returning ErrCSRFMismatch on failure.
func (s *AuthService) CheckCSRF(requestToken, referenceToken string) error {
	if !s.ValidateCSRF(requestToken, referenceToken) {
		return ErrCSRFMismatch
	}
	return nil
}

// SessionTTL returns the lifetime of issued sessions.
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessions.TTL()
}
