package ports

import (
	"context"

	"github.com/layer-3/assetgate/core"
)

// KYCDecisionClient queries a KYC vendor for the outcome of a session.
// Implementations bound every call with a timeout and do not retry.
type KYCDecisionClient interface {
	Decision(ctx context.Context, sessionID string) (*core.KYCUpdate, error)
}
