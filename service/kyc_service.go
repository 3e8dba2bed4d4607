package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/assetgate/adapters/kyc"
	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/logger"
	"github.com/layer-3/assetgate/ports"
)

// KYCOptions configure webhook intake.
type KYCOptions struct {
	PersonaWebhookSecret string
	DiditWebhookSecret   string
	// AllowUnsignedWebhooks accepts webhooks of a vendor without a configured
	// secret. Development only.
	AllowUnsignedWebhooks bool
	// SignatureTolerance bounds the age of a Persona signature timestamp.
	SignatureTolerance time.Duration
	NotifyTimeout      time.Duration
}

// KYCService applies vendor verification outcomes to identities.
type KYCService struct {
	store   ports.IdentityStore
	events  ports.EventPublisher
	mailer  ports.Mailer
	didit   ports.KYCDecisionClient
	clock   ports.Clock
	metrics ports.MetricsCollector
	logger  *logger.Logger
	opts    KYCOptions

	notifier
}

func NewKYCService(deps Dependencies, didit ports.KYCDecisionClient, opts KYCOptions) *KYCService {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultOptions().NotifyTimeout
	}
	if opts.SignatureTolerance <= 0 {
		opts.SignatureTolerance = 5 * time.Minute
	}

	log := deps.Logger.With("component", "kyc")
	if opts.AllowUnsignedWebhooks {
		for vendor, secret := range map[string]string{kyc.VendorPersona: opts.PersonaWebhookSecret, kyc.VendorDidit: opts.DiditWebhookSecret} {
			if secret == "" {
				log.Warn("KYC service: unsigned webhooks are accepted, do not run like this in production", "vendor", vendor)
			}
		}
	}

	return &KYCService{
		store:    deps.Store,
		events:   deps.Events,
		mailer:   deps.Mailer,
		didit:    didit,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		logger:   log,
		opts:     opts,
		notifier: notifier{logger: log, timeout: opts.NotifyTimeout},
	}
}

// ProcessPersonaWebhook checks the Persona-Signature header value and
// applies a Persona inquiry event.
func (s *KYCService) ProcessPersonaWebhook(ctx context.Context, body []byte, signature string) (*core.Identity, error) {
	err := s.checkSignature(kyc.VendorPersona, s.opts.PersonaWebhookSecret, func() bool {
		return kyc.VerifyPersonaSignature(body, signature, s.opts.PersonaWebhookSecret, s.clock.Now(), s.opts.SignatureTolerance)
	})
	if err != nil {
		return nil, err
	}

	update, err := kyc.ParsePersonaWebhook(body)
	if err != nil {
		s.metrics.RecordWebhook(kyc.VendorPersona, "malformed")
		return nil, err
	}
	return s.apply(ctx, update)
}

// ProcessDiditWebhook checks the body signature and applies a Didit session
// event. Without a configured secret the webhook is rejected unless unsigned
// webhooks were explicitly allowed.
func (s *KYCService) ProcessDiditWebhook(ctx context.Context, body []byte, signature string) (*core.Identity, error) {
	err := s.checkSignature(kyc.VendorDidit, s.opts.DiditWebhookSecret, func() bool {
		return kyc.VerifyDiditSignature(body, signature, s.opts.DiditWebhookSecret)
	})
	if err != nil {
		return nil, err
	}

	update, err := kyc.ParseDiditWebhook(body)
	if err != nil {
		s.metrics.RecordWebhook(kyc.VendorDidit, "malformed")
		return nil, err
	}
	return s.apply(ctx, update)
}

// checkSignature fails closed when the vendor has no secret, unless unsigned
// webhooks were explicitly allowed.
func (s *KYCService) checkSignature(vendor, secret string, verified func() bool) error {
	switch {
	case secret == "" && !s.opts.AllowUnsignedWebhooks:
		s.metrics.RecordWebhook(vendor, "unsigned")
		s.logger.Error("KYC service: webhook rejected, no webhook secret configured", "vendor", vendor)
		return core.Unauthorized(core.CodeWebhookSignature, errors.New("no webhook secret configured"))
	case secret == "":
		s.logger.Warn("KYC service: accepting unsigned webhook", "vendor", vendor)
	case !verified():
		s.metrics.RecordWebhook(vendor, "bad_signature")
		s.logger.Info("KYC service: webhook signature mismatch", "vendor", vendor)
		return core.Unauthorized(core.CodeWebhookSignature, errors.New("signature mismatch"))
	}
	return nil
}

// SyncDiditDecision pulls the current decision of a Didit session and applies it.
func (s *KYCService) SyncDiditDecision(ctx context.Context, sessionID string) (*core.Identity, error) {
	if s.didit == nil {
		return nil, core.Upstream(errors.New("didit client not configured"))
	}

	update, err := s.didit.Decision(ctx, sessionID)
	if err != nil {
		s.logger.Warn("KYC service: Didit decision failed", "session", sessionID, "error", err.Error())
		return nil, err
	}
	return s.apply(ctx, update)
}

func (s *KYCService) apply(ctx context.Context, update *core.KYCUpdate) (*core.Identity, error) {
	identity, err := s.match(ctx, update)
	if err != nil {
		s.metrics.RecordWebhook(update.Vendor, "unmatched")
		return nil, err
	}

	previous := identity.KYCStatus
	identity.KYCStatus = update.Status
	if update.InquiryID != "" {
		identity.KYCInquiryID = update.InquiryID
	}
	identity.UpdatedAt = s.clock.Now()
	if err := s.store.Save(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to save kyc status: %w", err)
	}

	s.metrics.RecordWebhook(update.Vendor, string(update.Status))
	s.logger.Info("KYC service: status updated",
		"id", identity.ID,
		"vendor", update.Vendor,
		"vendor_status", update.RawStatus,
		"status", string(update.Status))

	if previous == update.Status {
		return identity, nil
	}

	if s.events != nil {
		if err := s.events.PublishKYCStatus(ctx, identity, update.Vendor); err != nil {
			s.logger.Warn("KYC service: failed to publish status event", "id", identity.ID, "error", err.Error())
		}
	}
	if s.mailer != nil && identity.HasEmail() && update.Status != core.KYCPending {
		to, name, approved := identity.Email, identity.Name, update.Status == core.KYCApproved
		s.notify("kyc status", func(ctx context.Context) error {
			html, err := render(kycTemplate, struct {
				Name     string
				Approved bool
			}{name, approved})
			if err != nil {
				return err
			}
			return s.mailer.SendEmail(ctx, to, "Identity verification update", html, "")
		})
	}

	return identity, nil
}

// match finds the identity by the echoed reference id, then by inquiry id.
func (s *KYCService) match(ctx context.Context, update *core.KYCUpdate) (*core.Identity, error) {
	if update.ReferenceID != "" {
		identity, err := s.store.FindByID(ctx, update.ReferenceID)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("failed to load identity: %w", err)
		}
	}
	if update.InquiryID != "" {
		identity, err := s.store.FindByKYCInquiry(ctx, update.InquiryID)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("failed to load identity: %w", err)
		}
	}
	return nil, core.NotFound("no identity for kyc inquiry")
}
