package service

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/assetgate/adapters/clock"
	"github.com/layer-3/assetgate/adapters/hasher"
	"github.com/layer-3/assetgate/adapters/signature"
	"github.com/layer-3/assetgate/adapters/store"
	"github.com/layer-3/assetgate/adapters/tokenizer"
	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/testutil"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendVerificationEmail(ctx context.Context, to, code, name string) error {
	args := m.Called(ctx, to, code, name)
	return args.Error(0)
}

func (m *mockMailer) SendEmail(ctx context.Context, to, subject, html, text string) error {
	args := m.Called(ctx, to, subject, html, text)
	return args.Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishLogin(ctx context.Context, identity *core.Identity, method string) error {
	args := m.Called(ctx, identity, method)
	return args.Error(0)
}

func (m *mockEvents) PublishLogout(ctx context.Context, subjectID string, tokenID string) error {
	args := m.Called(ctx, subjectID, tokenID)
	return args.Error(0)
}

func (m *mockEvents) PublishKYCStatus(ctx context.Context, identity *core.Identity, vendor string) error {
	args := m.Called(ctx, identity, vendor)
	return args.Error(0)
}

type harness struct {
	svc       *AuthService
	guard     *Guard
	store     *store.MemoryStore
	clock     *clock.Manual
	tokenizer *tokenizer.JWTTokenizer
	mailer    *mockMailer
	events    *mockEvents
	deps      Dependencies
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	c := clock.NewManual(testNow)
	tk, err := tokenizer.NewJWTTokenizer("test-secret", 15*time.Minute, 7*24*time.Hour, c)
	require.NoError(t, err)

	h := &harness{
		store:     store.NewMemoryStore(),
		clock:     c,
		tokenizer: tk,
		mailer:    &mockMailer{},
		events:    &mockEvents{},
	}
	h.events.On("PublishLogin", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	h.deps = Dependencies{
		Store:     h.store,
		Tokenizer: tk,
		Verifier:  signature.NewVerifier(c, testutil.MakeNoopLogger()),
		Hasher:    hasher.NewArgon2(hasher.Params{Time: 1, MemKiB: 8 * 1024, Par: 1}),
		Mailer:    h.mailer,
		Events:    h.events,
		Clock:     c,
		Policy:    core.DefaultPolicy(),
		Logger:    testutil.MakeNoopLogger(),
	}

	h.svc, err = NewAuthService(h.deps, Options{})
	require.NoError(t, err)
	h.guard = NewGuard(h.deps)
	return h
}

// seed stores an identity directly, bypassing the orchestrator.
func (h *harness) seed(t *testing.T, identity *core.Identity) *core.Identity {
	t.Helper()
	if identity.KYCStatus == "" {
		identity.KYCStatus = core.KYCPending
	}
	if identity.EmailVerification == "" {
		identity.EmailVerification = core.EmailUnverified
	}
	identity.CreatedAt = h.clock.Now()
	identity.UpdatedAt = h.clock.Now()
	require.NoError(t, h.store.Create(context.Background(), identity))
	return identity
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (w wallet) challenge(t *testing.T, message string) core.WalletChallenge {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return core.WalletChallenge{Address: w.address, Signature: hexutil.Encode(sig), Message: message}
}
