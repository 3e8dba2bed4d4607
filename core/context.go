package core

import "context"

type identityKey struct{}

type principal struct {
	identity *Identity
	claims   *Claims
}

// WithIdentity attaches an authenticated identity and its token claims to ctx.
func WithIdentity(ctx context.Context, identity *Identity, claims *Claims) context.Context {
	return context.WithValue(ctx, identityKey{}, principal{identity: identity, claims: claims})
}

// IdentityFromContext returns the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	p, ok := ctx.Value(identityKey{}).(principal)
	if !ok || p.identity == nil {
		return nil, false
	}
	return p.identity, true
}

// ClaimsFromContext returns the token claims attached by WithIdentity.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	p, ok := ctx.Value(identityKey{}).(principal)
	if !ok || p.claims == nil {
		return nil, false
	}
	return p.claims, true
}
