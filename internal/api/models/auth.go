package models

// AdminTokenRequest exchanges the admin key for an admin token.
type AdminTokenRequest struct {
	APIKey string `json:"apiKey" validate:"required"`
}

// TokenResponse is an issued access token.
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int64     `json:"expiresIn"`
	ExpiresAt   Timestamp `json:"expiresAt"`
}
