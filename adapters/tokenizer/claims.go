package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the identity claims.
// Subject carries the identity id.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"`
	WalletAddress string `json:"wallet,omitempty"`
}
