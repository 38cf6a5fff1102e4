package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/handler/dto"
	"github.com/atlasgate/atlasgate/internal/middleware"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/service"
)

// Authenticator registers accounts and exchanges credentials for sessions.
// Satisfied by *service.AuthService.
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	RegisterAdmin(ctx context.Context, in service.RegisterInput, securityCode string) (*model.User, error)
	Authenticate(ctx context.Context, identifier, password string) (*service.LoginResult, error)
	AuthenticateAdmin(ctx context.Context, identifier, password string) (*service.LoginResult, error)
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	svc           Authenticator
	logger        *slog.Logger
	secureCookies bool
	now           func() time.Time
}

// NewAuthHandler creates a new AuthHandler. secureCookies marks the session
// and CSRF cookies Secure and should be set outside development.
func NewAuthHandler(svc Authenticator, logger *slog.Logger, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		svc:           svc,
		logger:        logger,
		secureCookies: secureCookies,
		now:           time.Now,
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	user, err := h.svc.Register(r.Context(), registerInput(req))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RegisterResponse{
		Message: "User registered successfully",
		User:    user.ToResponse(),
	})
}

// RegisterAdmin handles POST /auth/register-admin.
func (h *AuthHandler) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.SecurityCode == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SECURITY_CODE", "Security code is required")
		return
	}

	user, err := h.svc.RegisterAdmin(r.Context(), registerInput(req), req.SecurityCode)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RegisterResponse{
		Message: "Admin registered successfully",
		User:    user.ToResponse(),
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.svc.Authenticate, "Login successful")
}

// AdminLogin handles POST /auth/admin-login.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.svc.AuthenticateAdmin, "Admin login successful")
}

type authenticateFunc func(ctx context.Context, identifier, password string) (*service.LoginResult, error)

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, authenticate authenticateFunc, message string) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	identifier := strings.TrimSpace(req.Identifier())
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "MISSING_CREDENTIALS", "Email or username and password are required")
		return
	}

	res, err := authenticate(r.Context(), identifier, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.setSessionCookies(w, res)

	resp := dto.LoginResponse{
		Message:      message,
		Token:        res.Session.Token,
		ExpiresAt:    res.Session.ExpiresAt,
		CSRFToken:    res.CSRFToken,
		APIKeyIssued: res.APIKeyIssued(),
		User:         res.User.ToResponse(),
	}
	if res.APIKey != nil {
		resp.APIKey = res.APIKey.Plaintext
	}

	h.logger.Info("login",
		slog.Int64("user_id", res.User.ID),
		slog.String("role", string(res.User.Role)),
		slog.Bool("api_key_issued", resp.APIKeyIssued),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)

	writeJSON(w, http.StatusOK, resp)
}

// setSessionCookies sets the HttpOnly session cookie and the script-readable
// CSRF cookie used for double-submit checks.
func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, res *service.LoginResult) {
	maxAge := int(res.Session.ExpiresAt.Sub(h.now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    res.Session.Token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CSRFCookieName,
		Value:    res.CSRFToken,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func registerInput(req dto.RegisterRequest) service.RegisterInput {
	return service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Plan:     req.Plan,
	}
}
