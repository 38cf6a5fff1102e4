package dto

import "github.com/atlasgate/atlasgate/internal/model"

// CreateAPIKeyRequest is the optional body of POST /api/keys.
// Only admins may issue for another user.
type CreateAPIKeyRequest struct {
	UserID int64 `json:"userId,omitempty"`
}

// TotalAPIKeysResponse reports the number of stored keys.
type TotalAPIKeysResponse struct {
	TotalAPIKeys int64 `json:"totalApiKeys"`
}

// ToAPIKeyList converts keys to their public view. Never returns nil.
func ToAPIKeyList(keys []*model.APIKey) []model.APIKeyResponse {
	out := make([]model.APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.ToResponse())
	}
	return out
}
