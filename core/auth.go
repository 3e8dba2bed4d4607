package core

import "time"

// WalletChallenge is a client-produced proof of wallet ownership.
// It is consumed once by the signature verifier and never persisted.
type WalletChallenge struct {
	Address   string    // Wallet address claimed by the client
	Signature string    // Signature over Message
	Message   string    // Message that was signed
	Timestamp time.Time // When the client produced the challenge
}

// Claims are the identity claims carried by access and refresh tokens.
// Both token kinds carry the same claims and differ only in lifetime.
type Claims struct {
	TokenID       string
	SubjectID     string
	Email         string
	Role          Role
	WalletAddress string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// TokenKind selects the lifetime a token is issued with.
type TokenKind int

const (
	TokenAccess TokenKind = iota
	TokenRefresh
)

func (k TokenKind) String() string {
	switch k {
	case TokenAccess:
		return "access"
	case TokenRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Session is the result of a successful authentication.
type Session struct {
	Identity     *Identity
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration // Remaining lifetime of AccessToken
	Created      bool          // Identity was created by this call
}
