package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/ports"
)

const (
	TopicLogin     = "assetgate.auth.login"
	TopicLogout    = "assetgate.auth.logout"
	TopicKYCStatus = "assetgate.kyc.status"
)

// LoginEvent is published after every successful authentication.
type LoginEvent struct {
	SubjectID     string    `json:"subject_id"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	Email         string    `json:"email,omitempty"`
	Role          string    `json:"role"`
	Method        string    `json:"method"`
	At            time.Time `json:"at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	SubjectID string `json:"subject_id"`
	TokenID   string `json:"token_id"`
}

// KYCStatusEvent carries the normalised KYC outcome of an identity.
type KYCStatusEvent struct {
	SubjectID string `json:"subject_id"`
	Status    string `json:"status"`
	Vendor    string `json:"vendor"`
	InquiryID string `json:"inquiry_id,omitempty"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) PublishLogin(ctx context.Context, identity *core.Identity, method string) error {
	return p.publish(ctx, TopicLogin, watermill.NewUUID(), LoginEvent{
		SubjectID:     identity.ID,
		WalletAddress: identity.WalletAddress,
		Email:         identity.Email,
		Role:          identity.Role.String(),
		Method:        method,
		At:            identity.LastLoginAt,
	})
}

// PublishLogout publishes a logout event keyed by the token id.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, subjectID string, tokenID string) error {
	return p.publish(ctx, TopicLogout, tokenID, LogoutEvent{
		SubjectID: subjectID,
		TokenID:   tokenID,
	})
}

func (p *WatermillPublisher) PublishKYCStatus(ctx context.Context, identity *core.Identity, vendor string) error {
	return p.publish(ctx, TopicKYCStatus, watermill.NewUUID(), KYCStatusEvent{
		SubjectID: identity.ID,
		Status:    string(identity.KYCStatus),
		Vendor:    vendor,
		InquiryID: identity.KYCInquiryID,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
