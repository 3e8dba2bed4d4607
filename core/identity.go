package core

import (
	"strings"
	"time"
)

// EmailVerification is the verification state of an identity's email.
type EmailVerification string

const (
	EmailUnverified EmailVerification = "unverified"
	EmailPending    EmailVerification = "pending"
	EmailVerified   EmailVerification = "verified"
)

// KYCStatus is the normalised vendor verification status.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

// OnboardingState is the position of an identity in the wallet/email
// onboarding flow.
type OnboardingState string

const (
	StateAnonymous      OnboardingState = "anonymous"
	StateWalletVerified OnboardingState = "wallet_verified"
	StateProfilePending OnboardingState = "profile_pending"
	StateEmailPending   OnboardingState = "email_pending"
	StateVerified       OnboardingState = "verified"
)

// Identity is the durable record of a user.
type Identity struct {
	ID            string
	Email         string
	WalletAddress string
	Name          string
	Extra         map[string]string
	Role          Role
	PasswordHash  string

	EmailVerification     EmailVerification
	VerificationCode      string
	VerificationExpiresAt time.Time

	PasswordResetToken     string
	PasswordResetExpiresAt time.Time

	KYCStatus    KYCStatus
	KYCInquiryID string

	LastLoginAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// State derives the onboarding state from the stored fields.
func (i *Identity) State() OnboardingState {
	switch {
	case i == nil:
		return StateAnonymous
	case i.EmailVerification == EmailVerified:
		return StateVerified
	case i.EmailVerification == EmailPending:
		return StateEmailPending
	case i.Email == "":
		return StateProfilePending
	default:
		return StateWalletVerified
	}
}

// HasEmail reports whether the identity has an email bound.
func (i *Identity) HasEmail() bool {
	return i != nil && i.Email != ""
}

// Clone returns a deep copy, so stores never share mutable state with callers.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Extra != nil {
		c.Extra = make(map[string]string, len(i.Extra))
		for k, v := range i.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// NormalizeWallet returns the lookup key for a wallet address.
// Wallet uniqueness is case-insensitive.
func NormalizeWallet(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeEmail returns the lookup key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// KYCUpdate is a vendor status report reduced to what the intake needs.
type KYCUpdate struct {
	Vendor string
	// InquiryID is the vendor side identifier (Persona inquiry, Didit session).
	InquiryID string
	// ReferenceID is the subject id handed to the vendor, when echoed back.
	ReferenceID string
	RawStatus   string
	Status      KYCStatus
}
