package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/ports"
)

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      ports.Clock
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(secret string, accessTTL, refreshTTL time.Duration, clock ports.Clock) (*JWTTokenizer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &JWTTokenizer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clock,
	}, nil
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// Issue signs a token for identity with the lifetime of kind
func (j *JWTTokenizer) Issue(identity *core.Identity, kind core.TokenKind) (string, *core.Claims, error) {
	if identity == nil || identity.ID == "" {
		return "", nil, errors.New("identity without id")
	}

	var ttl time.Duration
	switch kind {
	case core.TokenAccess:
		ttl = j.accessTTL
	case core.TokenRefresh:
		ttl = j.refreshTTL
	default:
		return "", nil, fmt.Errorf("unknown token kind %d", kind)
	}

	// NumericDate has second precision; truncate so claims match what verifiers decode.
	now := j.clock.Now().Truncate(time.Second)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:         identity.Email,
		Role:          identity.Role.String(),
		WalletAddress: identity.WalletAddress,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return signedToken, toCore(&claims), nil
}

// Verify parses a token and returns its claims
func (j *JWTTokenizer) Verify(tokenStr string) (*core.Claims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.Unauthenticated(core.CodeTokenExpired, err)
		}
		return nil, core.Unauthenticated(core.CodeTokenInvalid, err)
	}

	// Validate token
	if !token.Valid || claims.Subject == "" {
		return nil, core.Unauthenticated(core.CodeTokenInvalid, errors.New("token has no subject"))
	}

	out := toCore(claims)
	if !out.Role.Valid() {
		return nil, core.Unauthenticated(core.CodeTokenInvalid, fmt.Errorf("unknown role %q", claims.Role))
	}

	return out, nil
}

func toCore(claims *SessionClaims) *core.Claims {
	role, _ := core.ParseRole(claims.Role)
	out := &core.Claims{
		TokenID:       claims.ID,
		SubjectID:     claims.Subject,
		Email:         claims.Email,
		Role:          role,
		WalletAddress: claims.WalletAddress,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}
