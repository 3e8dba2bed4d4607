package ports

import (
	"context"
	"time"

	"github.com/layer-3/assetgate/core"
)

// IdentityStore persists identities. Finders return core.ErrNotFound when
// nothing matches. Wallet address and email are unique, case-insensitively;
// Create and Save return core.ErrDuplicate when a constraint is violated.
// FindByVerificationCode only matches codes that have not expired at now.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (*core.Identity, error)
	FindByWallet(ctx context.Context, address string) (*core.Identity, error)
	FindByEmail(ctx context.Context, email string) (*core.Identity, error)
	FindByVerificationCode(ctx context.Context, code string, now time.Time) (*core.Identity, error)
	FindByResetToken(ctx context.Context, token string) (*core.Identity, error)
	FindByKYCInquiry(ctx context.Context, inquiryID string) (*core.Identity, error)

	Create(ctx context.Context, identity *core.Identity) error
	Save(ctx context.Context, identity *core.Identity) error
}

// IdentityLookup resolves token subjects on the request path. Cached results
// carry no password hash, reset token or verification code, so they must not
// be written back through an IdentityStore.
type IdentityLookup interface {
	LookupIdentity(ctx context.Context, id string) (*core.Identity, error)
}
