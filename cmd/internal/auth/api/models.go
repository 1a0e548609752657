package authapi

import (
	"time"

	"credd/cmd/identity"
	"credd/cmd/internal/auth/authn"
)

type credentialsRequest struct {
	Identity string `json:"identity" validate:"required"`
	Secret   string `json:"secret" validate:"required"`
}

type changeSecretRequest struct {
	OldSecret string `json:"old_secret" validate:"required"`
	NewSecret string `json:"new_secret" validate:"required"`
}

// profileRequest sets display_name; an empty string clears it.
type profileRequest struct {
	DisplayName *string `json:"display_name" validate:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type meResponse struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity"`
	DisplayName *string   `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toTokenResponse(res authn.Result) tokenResponse {
	return tokenResponse{
		Token:     res.Token,
		TokenType: "Bearer",
		ExpiresAt: res.ExpiresAt,
	}
}

func toMeResponse(rec identity.Record) meResponse {
	return meResponse{
		ID:          rec.ID,
		Identity:    rec.Identity,
		DisplayName: rec.DisplayName,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}
