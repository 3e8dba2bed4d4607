package ports

import (
	"context"

	"github.com/layer-3/assetgate/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogin(ctx context.Context, identity *core.Identity, method string) error
	PublishLogout(ctx context.Context, subjectID string, tokenID string) error
	PublishKYCStatus(ctx context.Context, identity *core.Identity, vendor string) error
}
