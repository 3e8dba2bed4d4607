package hasher

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/layer-3/assetgate/ports"
)

const (
	saltLength = 16
	keyLength  = 32
)

// Params are argon2id cost parameters.
type Params struct {
	Time   uint32
	MemKiB uint32
	Par    uint8
}

// DefaultParams follow the argon2 RFC's second recommended profile.
var DefaultParams = Params{Time: 3, MemKiB: 64 * 1024, Par: 4}

// Argon2 hashes passwords with argon2id and a random per-password salt.
// Digests are PHC strings, so cost changes keep old digests verifiable.
type Argon2 struct {
	params Params
}

var _ ports.PasswordHasher = (*Argon2)(nil)

// NewArgon2 creates a hasher with the given parameters.
func NewArgon2(params Params) *Argon2 {
	return &Argon2{params: params}
}

// Hash derives a digest for password.
func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, a.params.Time, a.params.MemKiB, a.params.Par, keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		a.params.MemKiB, a.params.Time, a.params.Par,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches digest. Malformed digests never match.
func (a *Argon2) Verify(password, digest string) bool {
	params, salt, key, err := decode(digest)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Time, params.MemKiB, params.Par, uint32(len(key)))

	return subtle.ConstantTimeCompare(candidate, key) == 1
}

var errMalformedDigest = errors.New("malformed digest")

func decode(digest string) (Params, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, errMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, errMalformedDigest
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemKiB, &p.Time, &p.Par); err != nil {
		return Params{}, nil, nil, errMalformedDigest
	}
	if p.Time == 0 || p.MemKiB == 0 || p.Par == 0 {
		return Params{}, nil, nil, errMalformedDigest
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, errMalformedDigest
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, errMalformedDigest
	}

	return p, salt, key, nil
}
