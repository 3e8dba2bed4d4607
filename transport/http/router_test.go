package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/assetgate/adapters/clock"
	"github.com/layer-3/assetgate/adapters/events"
	"github.com/layer-3/assetgate/adapters/hasher"
	"github.com/layer-3/assetgate/adapters/kyc"
	"github.com/layer-3/assetgate/adapters/mailer"
	"github.com/layer-3/assetgate/adapters/signature"
	"github.com/layer-3/assetgate/adapters/store"
	"github.com/layer-3/assetgate/adapters/tokenizer"
	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/testutil"
	"github.com/layer-3/assetgate/metrics"
	"github.com/layer-3/assetgate/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPersonaSecret = "persona-secret"

type testServer struct {
	router    *gin.Engine
	store     *store.MemoryStore
	tokenizer *tokenizer.JWTTokenizer
	auth      *service.AuthService
}

func newTestServer(t *testing.T, limiter *IPRateLimiter, health func(context.Context) error) *testServer {
	t.Helper()

	c := clock.NewSystem()
	tk, err := tokenizer.NewJWTTokenizer("test-secret", 15*time.Minute, 24*time.Hour, c)
	require.NoError(t, err)

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	reg := prometheus.NewRegistry()
	memory := store.NewMemoryStore()
	deps := service.Dependencies{
		Store:     memory,
		Tokenizer: tk,
		Verifier:  signature.NewVerifier(c, testutil.MakeNoopLogger()),
		Hasher:    hasher.NewArgon2(hasher.Params{Time: 1, MemKiB: 8 * 1024, Par: 1}),
		Mailer:    mailer.NewWatermillMailer(pubsub, "", "noreply@test"),
		Events:    events.NewWatermillPublisher(pubsub),
		Clock:     c,
		Metrics:   metrics.NewCollector(reg),
		Logger:    testutil.MakeNoopLogger(),
	}

	auth, err := service.NewAuthService(deps, service.Options{})
	require.NoError(t, err)
	t.Cleanup(auth.Wait)
	kycService := service.NewKYCService(deps, nil, service.KYCOptions{PersonaWebhookSecret: testPersonaSecret})

	router := SetupRouter(RouterConfig{
		Auth:     auth,
		KYC:      kycService,
		Guard:    service.NewGuard(deps),
		Limiter:  limiter,
		Gatherer: reg,
		Health:   health,
		Logger:   testutil.MakeNoopLogger(),
	})

	return &testServer{router: router, store: memory, tokenizer: tk, auth: auth}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seed(t *testing.T, id string, role core.Role) string {
	t.Helper()
	identity := &core.Identity{ID: id, Email: id + "@x.com", Role: role, KYCStatus: core.KYCPending, EmailVerification: core.EmailVerified}
	require.NoError(t, s.store.Create(context.Background(), identity))
	token, _, err := s.tokenizer.Issue(identity, core.TokenAccess)
	require.NoError(t, err)
	return token
}

func walletLogin(t *testing.T) map[string]any {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	message := "login-1699999999"
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	return map[string]any{
		"address":   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		"signature": hexutil.Encode(sig),
		"message":   message,
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestWalletLoginAndMe(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodPost, "/auth/wallet", "", walletLogin(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	session := decode(t, w)
	assert.Equal(t, "Bearer", session["token_type"])
	assert.Equal(t, float64(900), session["expires_in"])
	assert.Equal(t, true, session["created"])
	access := session["access_token"].(string)
	refresh := session["refresh_token"].(string)

	w = s.do(t, http.MethodGet, "/api/me", access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, "investor", me["role"])
	assert.Equal(t, string(core.StateProfilePending), me["state"])

	w = s.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["access_token"])

	w = s.do(t, http.MethodPost, "/auth/logout", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWalletLogin_BadRequestAndBadSignature(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodPost, "/auth/wallet", "", map[string]string{"address": "0xabc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := walletLogin(t)
	body["message"] = "something else"
	w = s.do(t, http.MethodPost, "/auth/wallet", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutes_TokenErrorsLookAlike(t *testing.T) {
	s := newTestServer(t, nil, nil)
	token := s.seed(t, "investor", core.RoleInvestor)

	missing := s.do(t, http.MethodGet, "/api/me", "", nil)
	tampered := s.do(t, http.MethodGet, "/api/me", token+"x", nil)

	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, http.StatusUnauthorized, tampered.Code)
	assert.Equal(t, missing.Body.String(), tampered.Body.String())
}

func TestRoleAndPermissionGuards(t *testing.T) {
	s := newTestServer(t, nil, nil)
	investor := s.seed(t, "investor", core.RoleInvestor)
	admin := s.seed(t, "admin", core.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/ping", investor, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/admin/ping", admin, nil).Code)

	promote := map[string]string{"role": "issuer"}
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPut, "/api/users/investor/role", investor, promote).Code)

	w := s.do(t, http.MethodPut, "/api/users/investor/role", admin, promote)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "issuer", decode(t, w)["role"])

	// the token still claims investor, the stored role wins
	w = s.do(t, http.MethodGet, "/api/me", investor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "issuer", decode(t, w)["role"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/users/investor/role", admin, map[string]string{"role": "root"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/users/nobody/role", admin, promote).Code)
}

func TestRegisterLoginAndChangePassword(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@x.com", "password": "long enough", "name": "Ann"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	access := decode(t, w)["access_token"].(string)

	w = s.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@x.com", "password": "long enough"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email already registered", decode(t, w)["error"])

	w = s.do(t, http.MethodPost, "/api/password", access, map[string]string{"old_password": "long enough", "new_password": "even longer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	wrong := s.do(t, http.MethodPost, "/auth/email", "", map[string]string{"email": "a@x.com", "password": "long enough"})
	unknown := s.do(t, http.MethodPost, "/auth/email", "", map[string]string{"email": "b@x.com", "password": "long enough"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/auth/email", "", map[string]string{"email": "a@x.com", "password": "even longer"}).Code)
}

func TestPasswordResetDoesNotRevealAccounts(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.seed(t, "known", core.RoleInvestor)

	known := s.do(t, http.MethodPost, "/auth/password/reset", "", map[string]string{"email": "known@x.com"})
	unknown := s.do(t, http.MethodPost, "/auth/password/reset", "", map[string]string{"email": "nobody@x.com"})

	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	w := s.do(t, http.MethodPost, "/auth/password/confirm", "", map[string]string{"token": "nope", "password": "long enough"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhooks(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.seed(t, "subject", core.RoleInvestor)

	persona := `{"data":{"attributes":{"payload":{"data":{"id":"inq_1","attributes":{"status":"approved","reference-id":"subject"}}}}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/persona", bytes.NewBufferString(persona))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a subject cannot approve itself with an unsigned body")

	declined := strings.Replace(persona, "approved", "declined", 1)
	req = httptest.NewRequest(http.MethodPost, "/webhooks/persona", bytes.NewBufferString(declined))
	req.Header.Set(kyc.PersonaSignatureHeader, kyc.SignPersona([]byte(declined), testPersonaSecret, time.Now()))
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "rejected", decode(t, w)["status"])

	req = httptest.NewRequest(http.MethodPost, "/webhooks/didit", bytes.NewBufferString(`{"session_id":"inq_1","status":"Approved"}`))
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unsigned didit webhooks are rejected by default")
}

func TestDiditSyncRequiresKYCReview(t *testing.T) {
	s := newTestServer(t, nil, nil)
	investor := s.seed(t, "investor", core.RoleInvestor)
	admin := s.seed(t, "admin", core.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/kyc/didit/sess_1/sync", investor, nil).Code)
	// no decision client configured
	assert.Equal(t, http.StatusBadGateway, s.do(t, http.MethodPost, "/api/kyc/didit/sess_1/sync", admin, nil).Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, NewIPRateLimiter(0.001, 2), nil)

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = s.do(t, http.MethodPost, "/auth/wallet", "", map[string]string{}).Code
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code, "only /auth is limited")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.do(t, http.MethodPost, "/auth/wallet", "", walletLogin(t))

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code)

	w := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `assetgate_login_attempts_total{method="wallet",outcome="success"} 1`)

	down := newTestServer(t, nil, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/healthz", "", nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[core.ErrorKind]int{
		core.KindUnauthenticated: http.StatusUnauthorized,
		core.KindUnauthorized:    http.StatusUnauthorized,
		core.KindForbidden:       http.StatusForbidden,
		core.KindBadRequest:      http.StatusBadRequest,
		core.KindNotFound:        http.StatusNotFound,
		core.KindUpstream:        http.StatusBadGateway,
		core.KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusFor(kind), kind.String())
	}
}

func TestIPRateLimiter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"), "buckets are per ip")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("1.1.1.1"))

	now = now.Add(time.Hour)
	l.Allow("3.3.3.3")
	assert.Len(t, l.visitors, 1, "idle buckets are dropped")
}
