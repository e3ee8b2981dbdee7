package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenRequest exchanges an API key for an access token.
type TokenRequest struct {
	APIKey string `json:"api_key" validate:"required,min=8"`
	Client string `json:"client" validate:"omitempty,max=64"`
}

// TokenResponse carries the issued access token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	Client string `json:"client,omitempty"`
	jwt.RegisteredClaims
}
