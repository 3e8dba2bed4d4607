package service

import (
	"context"
	"errors"
	"strings"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/logger"
	"github.com/layer-3/assetgate/ports"
)

const bearerPrefix = "Bearer "

// Requirement is what Authorize checks after authentication.
type Requirement struct {
	role       core.Role
	permission core.Permission
}

// RequireRole is satisfied by identities at or above role's tier.
func RequireRole(role core.Role) Requirement {
	return Requirement{role: role}
}

// RequirePermission is satisfied by identities whose role grants perm.
func RequirePermission(perm core.Permission) Requirement {
	return Requirement{permission: perm}
}

func (r Requirement) String() string {
	if r.permission != "" {
		return "permission " + string(r.permission)
	}
	return "role " + r.role.String()
}

// Guard authenticates bearer tokens and enforces the authorization policy.
type Guard struct {
	tokenizer ports.Tokenizer
	lookup    ports.IdentityLookup
	policy    *core.Policy
	metrics   ports.MetricsCollector
	logger    *logger.Logger
}

func NewGuard(deps Dependencies) *Guard {
	if deps.Policy == nil {
		deps.Policy = core.DefaultPolicy()
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if deps.Lookup == nil {
		deps.Lookup = storeLookup{deps.Store}
	}
	return &Guard{
		tokenizer: deps.Tokenizer,
		lookup:    deps.Lookup,
		policy:    deps.Policy,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("component", "guard"),
	}
}

// Authenticate validates the Authorization header value, reloads the identity
// named by the token and returns ctx with identity and claims attached.
// A failing lookup denies the request with Forbidden.
func (g *Guard) Authenticate(ctx context.Context, authorization string) (context.Context, error) {
	token, err := bearerToken(authorization)
	if err != nil {
		return ctx, g.reject(err)
	}

	claims, err := g.tokenizer.Verify(token)
	if err != nil {
		return ctx, g.reject(err)
	}

	identity, err := g.lookup.LookupIdentity(ctx, claims.SubjectID)
	if errors.Is(err, core.ErrNotFound) {
		return ctx, g.reject(core.Unauthenticated(core.CodeStaleIdentity, err))
	}
	if err != nil {
		g.logger.Error("Guard: identity lookup failed", "id", claims.SubjectID, "error", err.Error())
		return ctx, g.reject(&core.AuthError{Kind: core.KindForbidden, Code: core.CodeLookupFailed, Err: err})
	}

	return core.WithIdentity(ctx, identity, claims), nil
}

// Authorize authenticates and then checks req against the policy.
func (g *Guard) Authorize(ctx context.Context, authorization string, req Requirement) (context.Context, error) {
	ctx, err := g.Authenticate(ctx, authorization)
	if err != nil {
		return ctx, err
	}
	identity, _ := core.IdentityFromContext(ctx)
	if err := g.Check(identity, req); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// Check returns a Forbidden error unless identity satisfies req. A nil
// identity never does.
func (g *Guard) Check(identity *core.Identity, req Requirement) error {
	var ok bool
	code := core.CodeInsufficientRole
	if req.permission != "" {
		ok = g.policy.HasPermission(identity, req.permission)
		code = core.CodeMissingPermission
	} else {
		ok = g.policy.HasRole(identity, req.role)
	}
	if ok {
		return nil
	}

	id := ""
	if identity != nil {
		id = identity.ID
	}
	g.logger.Info("Guard: access denied", "id", id, "requires", req.String())
	return core.Forbidden(code)
}

func (g *Guard) reject(err error) error {
	code := core.CodeOf(err)
	g.metrics.RecordTokenRejected(code)
	g.logger.Debug("Guard: request not authenticated", "code", code)
	return err
}

// storeLookup serves lookups straight from the store when no cache is wired.
type storeLookup struct {
	store ports.IdentityStore
}

func (l storeLookup) LookupIdentity(ctx context.Context, id string) (*core.Identity, error) {
	return l.store.FindByID(ctx, id)
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", core.Unauthenticated(core.CodeMissingToken, nil)
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", core.Unauthenticated(core.CodeMalformedHeader, nil)
	}
	token := header[len(bearerPrefix):]
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", core.Unauthenticated(core.CodeMalformedHeader, nil)
	}
	return token, nil
}
