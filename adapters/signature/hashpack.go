package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxSignatureAge bounds how far an embedded timestamp may drift from now.
const MaxSignatureAge = 5 * time.Minute

var (
	errAccountMismatch = errors.New("account id does not match address")
	errHashMismatch    = errors.New("message hash does not match")
	errStaleSignature  = errors.New("signature timestamp outside freshness window")
)

// Hedera account ids: shard.realm.num
var hederaAccountID = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// IsHashPackAddress reports whether address is a Hedera account id.
func IsHashPackAddress(address string) bool {
	return hederaAccountID.MatchString(address)
}

// embeddedSignature is "accountId:sha256hex(message):timestampMillisHex".
type embeddedSignature struct {
	AccountID string
	Hash      string
	Timestamp time.Time
}

func parseEmbedded(signature string) (embeddedSignature, error) {
	parts := strings.Split(signature, ":")
	if len(parts) != 3 {
		return embeddedSignature{}, fmt.Errorf("expected 3 segments, got %d", len(parts))
	}

	tsHex := strings.TrimPrefix(strings.TrimPrefix(parts[2], "0x"), "0X")
	ms, err := strconv.ParseInt(tsHex, 16, 64)
	if err != nil {
		return embeddedSignature{}, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	return embeddedSignature{
		AccountID: parts[0],
		Hash:      parts[1],
		Timestamp: time.UnixMilli(ms),
	}, nil
}

func verifyEmbedded(address, message, signature string, now time.Time, maxAge time.Duration) error {
	sig, err := parseEmbedded(signature)
	if err != nil {
		return err
	}

	if sig.AccountID != address {
		return errAccountMismatch
	}

	sum := sha256.Sum256([]byte(message))
	if !strings.EqualFold(hex.EncodeToString(sum[:]), sig.Hash) {
		return errHashMismatch
	}

	age := now.Sub(sig.Timestamp)
	if age > maxAge || age < -maxAge {
		return errStaleSignature
	}

	return nil
}

// EmbeddedSignature builds a signature in the embedded-hash format.
func EmbeddedSignature(accountID, message string, at time.Time) string {
	sum := sha256.Sum256([]byte(message))
	return fmt.Sprintf("%s:%s:%s", accountID, hex.EncodeToString(sum[:]), strconv.FormatInt(at.UnixMilli(), 16))
}
