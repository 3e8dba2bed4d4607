package signature

import (
	"strings"
	"time"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/logger"
	"github.com/layer-3/assetgate/ports"
)

const (
	SchemePersonalSign = "personal_sign"
	SchemeEmbeddedHash = "embedded_hash"
)

// Verifier checks wallet challenges with the scheme matching the address.
type Verifier struct {
	clock  ports.Clock
	logger *logger.Logger
	maxAge time.Duration
}

var _ ports.SignatureVerifier = (*Verifier)(nil)

// NewVerifier creates a verifier using clock for the freshness window.
func NewVerifier(clock ports.Clock, logger *logger.Logger) *Verifier {
	return &Verifier{clock: clock, logger: logger, maxAge: MaxSignatureAge}
}

// Scheme returns the scheme used to check a challenge.
func Scheme(challenge core.WalletChallenge) string {
	if strings.Contains(challenge.Signature, ":") && IsHashPackAddress(challenge.Address) {
		return SchemeEmbeddedHash
	}
	return SchemePersonalSign
}

// Verify reports whether the challenge signature is valid for its address.
func (v *Verifier) Verify(challenge core.WalletChallenge) bool {
	if challenge.Address == "" || challenge.Signature == "" {
		v.logger.Debug("Signature verifier: empty address or signature")
		return false
	}

	scheme := Scheme(challenge)

	var err error
	switch scheme {
	case SchemeEmbeddedHash:
		err = verifyEmbedded(challenge.Address, challenge.Message, challenge.Signature, v.clock.Now(), v.maxAge)
	default:
		err = verifyPersonalSign(challenge.Address, challenge.Message, challenge.Signature)
	}
	if err != nil {
		v.logger.Info("Signature verifier: signature rejected",
			"address", challenge.Address,
			"scheme", scheme,
			"error", err.Error())
		return false
	}

	return true
}
