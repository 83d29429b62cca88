package dto

import "time"

// UserTokenRequest exchanges a username and password for a token.
type UserTokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SubjectTokenRequest issues a token for a non-user principal.
type SubjectTokenRequest struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
}

// TokenPairResponse carries freshly signed tokens.
type TokenPairResponse struct {
	TokenID          string    `json:"token_id"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthTokenResponse describes a stored token record.
type AuthTokenResponse struct {
	ID        string    `json:"id"`
	OwnerKind string    `json:"owner_kind"`
	Owner     string    `json:"owner"`
	Roles     []string  `json:"roles"`
	Valid     bool      `json:"valid"`
	CreatedAt time.Time `json:"created_at"`
}
