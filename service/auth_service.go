package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/logger"
	"github.com/layer-3/assetgate/ports"
)

const (
	MethodWallet = "wallet"
	MethodEmail  = "email"
)

// Options tune the orchestrator. Zero values are replaced by DefaultOptions.
type Options struct {
	VerificationTTL   time.Duration
	ResetTTL          time.Duration
	MinPasswordLength int
	NotifyTimeout     time.Duration
	// AppBaseURL is where password reset links point to.
	AppBaseURL string
}

func DefaultOptions() Options {
	return Options{
		VerificationTTL:   10 * time.Minute,
		ResetTTL:          time.Hour,
		MinPasswordLength: 8,
		NotifyTimeout:     15 * time.Second,
		AppBaseURL:        "http://localhost:3000",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.VerificationTTL <= 0 {
		o.VerificationTTL = d.VerificationTTL
	}
	if o.ResetTTL <= 0 {
		o.ResetTTL = d.ResetTTL
	}
	if o.MinPasswordLength <= 0 {
		o.MinPasswordLength = d.MinPasswordLength
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = d.NotifyTimeout
	}
	if o.AppBaseURL == "" {
		o.AppBaseURL = d.AppBaseURL
	}
	return o
}

// Dependencies are the collaborators of AuthService.
type Dependencies struct {
	Store ports.IdentityStore
	// Lookup serves the guard. It defaults to Store.
	Lookup    ports.IdentityLookup
	Tokenizer ports.Tokenizer
	Verifier  ports.SignatureVerifier
	Hasher    ports.PasswordHasher
	Mailer    ports.Mailer
	Events    ports.EventPublisher
	Clock     ports.Clock
	Policy    *core.Policy
	Metrics   ports.MetricsCollector
	Logger    *logger.Logger
}

// AuthService handles authentication business logic
type AuthService struct {
	store     ports.IdentityStore
	tokenizer ports.Tokenizer
	verifier  ports.SignatureVerifier
	hasher    ports.PasswordHasher
	mailer    ports.Mailer
	events    ports.EventPublisher
	clock     ports.Clock
	policy    *core.Policy
	metrics   ports.MetricsCollector
	logger    *logger.Logger
	opts      Options

	// dummyHash is verified against when an email is unknown, so both
	// failure paths cost one key derivation.
	dummyHash string

	notifier
}

// NewAuthService creates a new authentication service
func NewAuthService(deps Dependencies, opts Options) (*AuthService, error) {
	if deps.Store == nil || deps.Tokenizer == nil || deps.Verifier == nil || deps.Hasher == nil || deps.Clock == nil || deps.Logger == nil {
		return nil, errors.New("auth service: missing dependency")
	}
	if deps.Policy == nil {
		deps.Policy = core.DefaultPolicy()
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	opts = opts.withDefaults()

	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to derive dummy hash: %w", err)
	}

	log := deps.Logger.With("component", "auth")
	return &AuthService{
		store:     deps.Store,
		tokenizer: deps.Tokenizer,
		verifier:  deps.Verifier,
		hasher:    deps.Hasher,
		mailer:    deps.Mailer,
		events:    deps.Events,
		clock:     deps.Clock,
		policy:    deps.Policy,
		metrics:   deps.Metrics,
		logger:    log,
		opts:      opts,
		dummyHash: dummy,
		notifier:  notifier{logger: log, timeout: opts.NotifyTimeout},
	}, nil
}

// AuthenticateWithWallet logs a wallet in, creating its identity on first use.
func (s *AuthService) AuthenticateWithWallet(ctx context.Context, challenge core.WalletChallenge) (*core.Session, error) {
	if !s.verifier.Verify(challenge) {
		s.metrics.RecordLogin(MethodWallet, "failure")
		return nil, core.Unauthorized(core.CodeBadSignature, nil)
	}

	identity, created, err := s.findOrCreateWallet(ctx, challenge.Address)
	if err != nil {
		return nil, err
	}

	if err := s.stampLogin(ctx, identity); err != nil {
		return nil, err
	}

	session, err := s.startSession(ctx, identity, MethodWallet)
	if err != nil {
		return nil, err
	}
	session.Created = created
	return session, nil
}

// findOrCreateWallet loads the identity bound to address. A concurrent
// create of the same wallet is resolved by reloading the winner.
func (s *AuthService) findOrCreateWallet(ctx context.Context, address string) (*core.Identity, bool, error) {
	identity, err := s.store.FindByWallet(ctx, address)
	if err == nil {
		return identity, false, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up wallet: %w", err)
	}

	now := s.clock.Now()
	identity = &core.Identity{
		ID:                uuid.NewString(),
		WalletAddress:     address,
		Role:              core.DefaultRole,
		EmailVerification: core.EmailUnverified,
		KYCStatus:         core.KYCPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.store.Create(ctx, identity)
	switch {
	case err == nil:
		s.logger.Info("Auth service: identity created", "id", identity.ID, "wallet", address)
		return identity, true, nil
	case errors.Is(err, core.ErrDuplicate):
		identity, err = s.store.FindByWallet(ctx, address)
		if err != nil {
			return nil, false, fmt.Errorf("failed to reload wallet after conflict: %w", err)
		}
		return identity, false, nil
	default:
		return nil, false, fmt.Errorf("failed to create identity: %w", err)
	}
}

// AuthenticateWithEmail logs in with email and password. Unknown email and
// wrong password fail identically.
func (s *AuthService) AuthenticateWithEmail(ctx context.Context, email, password string) (*core.Session, error) {
	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	digest := s.dummyHash
	if identity != nil && identity.PasswordHash != "" {
		digest = identity.PasswordHash
	}
	if !s.hasher.Verify(password, digest) || identity == nil || identity.PasswordHash == "" {
		s.metrics.RecordLogin(MethodEmail, "failure")
		return nil, core.Unauthorized(core.CodeBadCredentials, nil)
	}

	if err := s.stampLogin(ctx, identity); err != nil {
		return nil, err
	}

	return s.startSession(ctx, identity, MethodEmail)
}

// RegisterWithEmail creates a password identity awaiting email verification.
func (s *AuthService) RegisterWithEmail(ctx context.Context, email, password, name string) (*core.Session, error) {
	email, err := s.validateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := s.validatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, core.BadRequest("email already registered")
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clock.Now()
	identity := &core.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         core.DefaultRole,
		PasswordHash: digest,
		KYCStatus:    core.KYCPending,
		LastLoginAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.startVerification(ctx, identity); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, core.ErrDuplicate) {
			return nil, core.BadRequest("email already registered")
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	s.sendVerification(identity)

	session, err := s.startSession(ctx, identity, MethodEmail)
	if err != nil {
		return nil, err
	}
	session.Created = true
	return session, nil
}

// CompleteProfile binds an email and profile data to a wallet identity and
// starts email verification. The returned tokens keep the caller signed in
// while the email is unverified.
func (s *AuthService) CompleteProfile(ctx context.Context, challenge core.WalletChallenge, email, name string, extra map[string]string) (*core.Session, error) {
	if !s.verifier.Verify(challenge) {
		return nil, core.Unauthorized(core.CodeBadSignature, nil)
	}

	email, err := s.validateEmail(email)
	if err != nil {
		return nil, err
	}

	identity, _, err := s.findOrCreateWallet(ctx, challenge.Address)
	if err != nil {
		return nil, err
	}

	owner, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil && owner.ID != identity.ID:
		return nil, core.BadRequest("email already in use")
	case err != nil && !errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	sameVerified := identity.EmailVerification == core.EmailVerified && core.NormalizeEmail(identity.Email) == email

	identity.Email = email
	identity.Name = name
	if extra != nil {
		identity.Extra = make(map[string]string, len(extra))
		for k, v := range extra {
			identity.Extra[k] = v
		}
	}
	identity.UpdatedAt = s.clock.Now()
	if !sameVerified {
		if err := s.startVerification(ctx, identity); err != nil {
			return nil, err
		}
	}

	if err := s.store.Save(ctx, identity); err != nil {
		if errors.Is(err, core.ErrDuplicate) {
			return nil, core.BadRequest("email already in use")
		}
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	if !sameVerified {
		s.sendVerification(identity)
	}

	return s.startSession(ctx, identity, MethodWallet)
}

// VerifyEmail consumes a verification code.
func (s *AuthService) VerifyEmail(ctx context.Context, code string) (*core.Identity, error) {
	if code == "" {
		return nil, core.BadRequest("verification code is required")
	}

	now := s.clock.Now()
	identity, err := s.store.FindByVerificationCode(ctx, code, now)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.BadRequest("invalid or expired verification code")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up verification code: %w", err)
	}

	identity.EmailVerification = core.EmailVerified
	identity.VerificationCode = ""
	identity.VerificationExpiresAt = time.Time{}
	identity.UpdatedAt = now
	if err := s.store.Save(ctx, identity); err != nil {
		return nil, fmt.Errorf("failed to save verification: %w", err)
	}

	s.logger.Info("Auth service: email verified", "id", identity.ID)
	return identity, nil
}

// ResendVerificationEmail issues a fresh code for an unverified email.
func (s *AuthService) ResendVerificationEmail(ctx context.Context, email string) error {
	identity, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return core.NotFound("identity not found")
	}
	if err != nil {
		return fmt.Errorf("failed to look up email: %w", err)
	}
	if identity.EmailVerification == core.EmailVerified {
		return core.BadRequest("email already verified")
	}

	if err := s.startVerification(ctx, identity); err != nil {
		return err
	}
	identity.UpdatedAt = s.clock.Now()
	if err := s.store.Save(ctx, identity); err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}

	s.sendVerification(identity)
	return nil
}

// Refresh mints a new access token from a refresh token. Claims are derived
// from the stored identity, never copied from the old token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*core.Session, error) {
	claims, err := s.tokenizer.Verify(refreshToken)
	if err != nil {
		s.metrics.RecordTokenRejected(core.CodeOf(err))
		s.logger.Debug("Auth service: refresh token rejected", "code", core.CodeOf(err))
		return nil, err
	}

	identity, err := s.store.FindByID(ctx, claims.SubjectID)
	if errors.Is(err, core.ErrNotFound) {
		s.metrics.RecordTokenRejected(core.CodeStaleIdentity)
		return nil, core.Unauthenticated(core.CodeStaleIdentity, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	accessToken, accessClaims, err := s.tokenizer.Issue(identity, core.TokenAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to create new access token: %w", err)
	}

	return &core.Session{
		Identity:    identity,
		AccessToken: accessToken,
		ExpiresIn:   accessClaims.ExpiresAt.Sub(accessClaims.IssuedAt),
	}, nil
}

// Logout announces the end of a session. Tokens are stateless, so the event
// is the only effect.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokenizer.Verify(refreshToken)
	if err != nil {
		// nothing left to end
		if core.CodeOf(err) == core.CodeTokenExpired {
			return nil
		}
		return err
	}

	if s.events != nil {
		if err := s.events.PublishLogout(ctx, claims.SubjectID, claims.TokenID); err != nil {
			s.logger.Warn("Auth service: failed to publish logout event", "id", claims.SubjectID, "error", err.Error())
		}
	}
	return nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, subjectID, oldPassword, newPassword string) error {
	identity, err := s.GetIdentity(ctx, subjectID)
	if err != nil {
		return err
	}
	if identity.PasswordHash == "" {
		return core.BadRequest("no password set, use password reset")
	}
	if !s.hasher.Verify(oldPassword, identity.PasswordHash) {
		return core.Unauthorized(core.CodeBadCredentials, nil)
	}
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	return s.setPassword(ctx, identity, newPassword)
}

// ResetPassword mails a single-use reset link. Unknown emails succeed silently.
func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	identity, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		s.logger.Debug("Auth service: password reset for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up email: %w", err)
	}

	token, err := randomHex(32)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	identity.PasswordResetToken = token
	identity.PasswordResetExpiresAt = now.Add(s.opts.ResetTTL)
	identity.UpdatedAt = now
	if err := s.store.Save(ctx, identity); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	link := s.opts.AppBaseURL + "/reset-password?token=" + url.QueryEscape(token)
	if s.mailer != nil {
		to, name := identity.Email, identity.Name
		s.notify("password reset", func(ctx context.Context) error {
			html, err := render(resetTemplate, struct{ Name, Link string }{name, link})
			if err != nil {
				return err
			}
			return s.mailer.SendEmail(ctx, to, "Reset your password", html, "Reset your password: "+link)
		})
	}
	return nil
}

// ConfirmPasswordReset sets a new password with a reset token and consumes it.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return core.BadRequest("reset token is required")
	}
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	identity, err := s.store.FindByResetToken(ctx, token)
	if errors.Is(err, core.ErrNotFound) {
		return core.BadRequest("invalid or expired reset token")
	}
	if err != nil {
		return fmt.Errorf("failed to look up reset token: %w", err)
	}
	if s.clock.Now().After(identity.PasswordResetExpiresAt) {
		return core.BadRequest("invalid or expired reset token")
	}

	return s.setPassword(ctx, identity, newPassword)
}

// GetIdentity returns the identity with the given subject id.
func (s *AuthService) GetIdentity(ctx context.Context, subjectID string) (*core.Identity, error) {
	identity, err := s.store.FindByID(ctx, subjectID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.NotFound("identity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	return identity, nil
}

// AssignRole changes the role of target. The actor needs the role management
// permission and may neither grant nor revoke above its own tier.
func (s *AuthService) AssignRole(ctx context.Context, actor *core.Identity, targetID string, role core.Role) (*core.Identity, error) {
	if !role.Valid() {
		return nil, core.BadRequest("unknown role")
	}
	if !s.policy.HasPermission(actor, core.PermUsersManageRoles) {
		return nil, core.Forbidden(core.CodeMissingPermission)
	}
	if !s.policy.HasRole(actor, role) {
		return nil, core.Forbidden(core.CodeInsufficientRole)
	}

	target, err := s.GetIdentity(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !s.policy.HasRole(actor, target.Role) {
		return nil, core.Forbidden(core.CodeInsufficientRole)
	}

	previous := target.Role
	target.Role = role
	target.UpdatedAt = s.clock.Now()
	if err := s.store.Save(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to save role: %w", err)
	}

	s.logger.Info("Auth service: role assigned",
		"actor", actor.ID,
		"target", target.ID,
		"from", previous.String(),
		"to", role.String())
	return target, nil
}

func (s *AuthService) stampLogin(ctx context.Context, identity *core.Identity) error {
	now := s.clock.Now()
	identity.LastLoginAt = now
	identity.UpdatedAt = now
	if err := s.store.Save(ctx, identity); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

func (s *AuthService) startSession(ctx context.Context, identity *core.Identity, method string) (*core.Session, error) {
	accessToken, accessClaims, err := s.tokenizer.Issue(identity, core.TokenAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	refreshToken, _, err := s.tokenizer.Issue(identity, core.TokenRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	s.metrics.RecordLogin(method, "success")
	if s.events != nil {
		if err := s.events.PublishLogin(ctx, identity, method); err != nil {
			s.logger.Warn("Auth service: failed to publish login event", "id", identity.ID, "error", err.Error())
		}
	}

	return &core.Session{
		Identity:     identity,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    accessClaims.ExpiresAt.Sub(accessClaims.IssuedAt),
	}, nil
}

const codeAttempts = 5

// startVerification assigns a fresh code that no other identity holds live.
func (s *AuthService) startVerification(ctx context.Context, identity *core.Identity) error {
	now := s.clock.Now()
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := verificationCode()
		if err != nil {
			return err
		}

		holder, err := s.store.FindByVerificationCode(ctx, code, now)
		switch {
		case errors.Is(err, core.ErrNotFound), err == nil && holder.ID == identity.ID:
			identity.EmailVerification = core.EmailPending
			identity.VerificationCode = code
			identity.VerificationExpiresAt = now.Add(s.opts.VerificationTTL)
			return nil
		case err != nil:
			return fmt.Errorf("failed to look up verification code: %w", err)
		}
	}
	return fmt.Errorf("failed to allocate verification code after %d attempts", codeAttempts)
}

func (s *AuthService) sendVerification(identity *core.Identity) {
	if s.mailer == nil {
		return
	}
	to, code, name := identity.Email, identity.VerificationCode, identity.Name
	s.notify("verification email", func(ctx context.Context) error {
		return s.mailer.SendVerificationEmail(ctx, to, code, name)
	})
}

func (s *AuthService) setPassword(ctx context.Context, identity *core.Identity, password string) error {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	identity.PasswordHash = digest
	identity.PasswordResetToken = ""
	identity.PasswordResetExpiresAt = time.Time{}
	identity.UpdatedAt = s.clock.Now()
	if err := s.store.Save(ctx, identity); err != nil {
		return fmt.Errorf("failed to save password: %w", err)
	}
	return nil
}

func (s *AuthService) validateEmail(email string) (string, error) {
	email = core.NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", core.BadRequest("invalid email address")
	}
	return email, nil
}

func (s *AuthService) validatePassword(password string) error {
	if len(password) < s.opts.MinPasswordLength {
		return core.BadRequest("password must be at least %d characters", s.opts.MinPasswordLength)
	}
	return nil
}

// verificationCode returns a uniformly random 6-digit code.
func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
