package kyc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/ports"
)

// DiditSignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const DiditSignatureHeader = "X-Signature"

type diditSession struct {
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
	VendorData string `json:"vendor_data"`
}

// DiditStatus maps a Didit session status. Unknown values stay pending.
func DiditStatus(status string) core.KYCStatus {
	switch strings.ToLower(status) {
	case "approved":
		return core.KYCApproved
	case "declined":
		return core.KYCRejected
	default:
		return core.KYCPending
	}
}

func (s diditSession) update() *core.KYCUpdate {
	return &core.KYCUpdate{
		Vendor:      VendorDidit,
		InquiryID:   s.SessionID,
		ReferenceID: s.VendorData,
		RawStatus:   s.Status,
		Status:      DiditStatus(s.Status),
	}
}

// ParseDiditWebhook decodes a Didit status webhook.
func ParseDiditWebhook(body []byte) (*core.KYCUpdate, error) {
	var session diditSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, core.BadRequest("malformed didit payload")
	}
	if session.SessionID == "" && session.VendorData == "" {
		return nil, core.BadRequest("didit payload has no session")
	}
	return session.update(), nil
}

// VerifyDiditSignature checks the hex HMAC-SHA256 of body under secret.
func VerifyDiditSignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignDidit produces the signature header value for body.
func SignDidit(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// DiditClient fetches session decisions from the Didit API. Calls are bounded
// by the client timeout and never retried.
type DiditClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ ports.KYCDecisionClient = (*DiditClient)(nil)

func NewDiditClient(baseURL, apiKey string, timeout time.Duration) *DiditClient {
	return &DiditClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Decision returns the current status of a verification session.
func (c *DiditClient) Decision(ctx context.Context, sessionID string) (*core.KYCUpdate, error) {
	if sessionID == "" {
		return nil, core.BadRequest("session id is required")
	}

	endpoint := fmt.Sprintf("%s/v2/session/%s/decision/", c.baseURL, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, core.Upstream(fmt.Errorf("failed to build didit request: %w", err))
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.Upstream(fmt.Errorf("didit decision request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.Upstream(fmt.Errorf("failed to read didit response: %w", err))
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, core.NotFound("kyc session not found")
	}
	if resp.StatusCode/100 != 2 {
		return nil, core.Upstream(fmt.Errorf("didit responded with status %d", resp.StatusCode))
	}

	var session diditSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, core.Upstream(fmt.Errorf("failed to decode didit response: %w", err))
	}
	if session.SessionID == "" {
		return nil, core.Upstream(errors.New("didit response has no session id"))
	}
	return session.update(), nil
}
