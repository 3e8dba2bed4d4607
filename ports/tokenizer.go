package ports

import "github.com/layer-3/assetgate/core"

// Tokenizer issues and verifies stateless session tokens.
type Tokenizer interface {
	// Issue signs a token of the given kind carrying the identity's current claims.
	Issue(identity *core.Identity, kind core.TokenKind) (string, *core.Claims, error)

	// Verify validates the signature and expiry. Every failure is an
	// Unauthenticated *core.AuthError; only its Code tells expired from invalid.
	Verify(token string) (*core.Claims, error)
}
