package ports

import (
	"time"

	"github.com/layer-3/assetgate/core"
)

// SignatureVerifier checks that a challenge was signed by the claimed wallet.
// It never fails with an error; anything malformed is simply not verified.
type SignatureVerifier interface {
	Verify(challenge core.WalletChallenge) bool
}

// PasswordHasher derives and checks password digests.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify is false for a mismatching password and for malformed digests.
	Verify(password, digest string) bool
}

// Clock is the time source of the auth core.
type Clock interface {
	Now() time.Time
}
