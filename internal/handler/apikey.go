package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/atlasgate/atlasgate/internal/auth"
	"github.com/atlasgate/atlasgate/internal/handler/dto"
	"github.com/atlasgate/atlasgate/internal/model"
	"github.com/atlasgate/atlasgate/internal/service"
)

// KeyManager issues, lists and revokes API keys.
// Satisfied by *service.APIKeyService.
type KeyManager interface {
	Issue(ctx context.Context, userID int64) (*service.IssuedKey, error)
	List(ctx context.Context, userID int64) ([]*model.APIKey, error)
	RevokeAs(ctx context.Context, keyID, actorID int64, admin bool) error
	TotalKeys(ctx context.Context) (int64, error)
}

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	keys   KeyManager
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(keys KeyManager, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		keys:   keys,
		logger: logger,
	}
}

// Create handles POST /api/keys. The body is optional; admins may name
// another user to issue for.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := sessionActor(w, r)
	if !ok {
		return
	}

	var req dto.CreateAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errMissingBody) {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	target, ok := caller.resolveTarget(w, req.UserID)
	if !ok {
		return
	}

	issued, err := h.keys.Issue(r.Context(), target)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, issued.ToResponse())
}

// List handles GET /api/keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := sessionActor(w, r)
	if !ok {
		return
	}
	h.list(w, r, caller.id)
}

// ListForUser handles GET /api/keys/user/{userId}.
func (h *APIKeyHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := int64Param(r, "userId")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_USER_ID", "User ID must be a positive integer")
		return
	}
	h.list(w, r, userID)
}

func (h *APIKeyHandler) list(w http.ResponseWriter, r *http.Request, userID int64) {
	keys, err := h.keys.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToAPIKeyList(keys))
}

// Revoke handles DELETE /api/keys/{keyId}. Non-admins may only revoke
// their own keys.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := sessionActor(w, r)
	if !ok {
		return
	}

	keyID, ok := int64Param(r, "keyId")
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_KEY_ID", "Key ID must be a positive integer")
		return
	}

	if err := h.keys.RevokeAs(r.Context(), keyID, caller.id, caller.admin); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "API key deleted successfully"})
}

// Total handles GET /api/usage/total-api-keys.
func (h *APIKeyHandler) Total(w http.ResponseWriter, r *http.Request) {
	n, err := h.keys.TotalKeys(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TotalAPIKeysResponse{TotalAPIKeys: n})
}

// actor is the session user behind a request.
type actor struct {
	id    int64
	admin bool
}

// sessionActor reads the session placed in the context by the session
// middleware and writes a 401 if it is missing.
func sessionActor(w http.ResponseWriter, r *http.Request) (actor, bool) {
	claims := auth.SessionFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Login required")
		return actor{}, false
	}
	id, err := claims.UserID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired session")
		return actor{}, false
	}
	return actor{id: id, admin: claims.Role == model.RoleAdmin}, true
}

// resolveTarget returns the user an action applies to. Zero means the actor
// itself; anyone else requires admin.
func (a actor) resolveTarget(w http.ResponseWriter, requested int64) (int64, bool) {
	switch {
	case requested < 0:
		writeError(w, http.StatusBadRequest, "INVALID_USER_ID", "User ID must be a positive integer")
		return 0, false
	case requested == 0 || requested == a.id:
		return a.id, true
	case a.admin:
		return requested, true
	default:
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin role required to act for another user")
		return 0, false
	}
}
