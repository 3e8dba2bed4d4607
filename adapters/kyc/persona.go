package kyc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/assetgate/core"
)

// PersonaSignatureHeader carries "t=<unix>,v1=<hex hmac>". During secret
// rotation several such groups are sent, separated by spaces.
const PersonaSignatureHeader = "Persona-Signature"

type personaWebhook struct {
	Data struct {
		Attributes struct {
			Name    string `json:"name"`
			Payload struct {
				Data struct {
					ID         string `json:"id"`
					Attributes struct {
						Status      string `json:"status"`
						ReferenceID string `json:"reference-id"`
					} `json:"attributes"`
				} `json:"data"`
			} `json:"payload"`
		} `json:"attributes"`
	} `json:"data"`
}

// PersonaStatus maps a Persona inquiry status. Unknown values stay pending.
func PersonaStatus(status string) core.KYCStatus {
	switch strings.ToLower(status) {
	case "approved", "completed":
		return core.KYCApproved
	case "declined", "failed":
		return core.KYCRejected
	default:
		return core.KYCPending
	}
}

// ParsePersonaWebhook decodes a Persona event envelope.
func ParsePersonaWebhook(body []byte) (*core.KYCUpdate, error) {
	var hook personaWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, core.BadRequest("malformed persona payload")
	}

	inquiry := hook.Data.Attributes.Payload.Data
	if inquiry.ID == "" && inquiry.Attributes.ReferenceID == "" {
		return nil, core.BadRequest("persona payload has no inquiry")
	}

	return &core.KYCUpdate{
		Vendor:      VendorPersona,
		InquiryID:   inquiry.ID,
		ReferenceID: inquiry.Attributes.ReferenceID,
		RawStatus:   inquiry.Attributes.Status,
		Status:      PersonaStatus(inquiry.Attributes.Status),
	}, nil
}

// VerifyPersonaSignature checks the HMAC-SHA256 of "<t>.<body>" under secret
// against every v1 value in header. Timestamps further than tolerance from
// now are rejected.
func VerifyPersonaSignature(body []byte, header, secret string, now time.Time, tolerance time.Duration) bool {
	if secret == "" || header == "" {
		return false
	}

	for _, group := range strings.Fields(header) {
		var ts string
		var sigs []string
		for _, part := range strings.Split(group, ",") {
			k, v, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			switch k {
			case "t":
				ts = v
			case "v1":
				sigs = append(sigs, v)
			}
		}

		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			continue
		}
		if age := now.Sub(time.Unix(unix, 0)); age > tolerance || age < -tolerance {
			continue
		}

		want := personaMAC(body, ts, secret)
		for _, sig := range sigs {
			got, err := hex.DecodeString(sig)
			if err == nil && hmac.Equal(got, want) {
				return true
			}
		}
	}
	return false
}

// SignPersona produces the signature header value for body at t.
func SignPersona(body []byte, secret string, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(personaMAC(body, ts, secret))
}

func personaMAC(body []byte, ts, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}
