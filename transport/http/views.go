package http

import (
	"time"

	"github.com/layer-3/assetgate/core"
)

type identityView struct {
	ID                string            `json:"id"`
	Email             string            `json:"email,omitempty"`
	WalletAddress     string            `json:"wallet_address,omitempty"`
	Name              string            `json:"name,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
	Role              string            `json:"role"`
	State             string            `json:"state"`
	EmailVerification string            `json:"email_verification"`
	KYCStatus         string            `json:"kyc_status"`
	LastLoginAt       *time.Time        `json:"last_login_at,omitempty"`
}

func newIdentityView(i *core.Identity) identityView {
	v := identityView{
		ID:                i.ID,
		Email:             i.Email,
		WalletAddress:     i.WalletAddress,
		Name:              i.Name,
		Extra:             i.Extra,
		Role:              i.Role.String(),
		State:             string(i.State()),
		EmailVerification: string(i.EmailVerification),
		KYCStatus:         string(i.KYCStatus),
	}
	if !i.LastLoginAt.IsZero() {
		t := i.LastLoginAt
		v.LastLoginAt = &t
	}
	return v
}

type sessionView struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	Created      bool         `json:"created,omitempty"`
	Identity     identityView `json:"identity"`
}

func newSessionView(s *core.Session) sessionView {
	return sessionView{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.ExpiresIn / time.Second),
		Created:      s.Created,
		Identity:     newIdentityView(s.Identity),
	}
}
