package mcp

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	x402types "github.com/coinbase/x402/go/types"
)

// Facilitator payments travel in the x402 headers: PAYMENT-SIGNATURE for v2
// payloads and X-PAYMENT for v1.

type paymentHeader struct {
	Name    string
	Value   string
	Version int
}

func paymentSignatureHeader(payment map[string]any) (*paymentHeader, error) {
	if payment["payload"] == nil {
		return nil, errors.New("x402/payment metadata missing payload")
	}
	raw, err := json.Marshal(payment)
	if err != nil {
		return nil, fmt.Errorf("unable to encode x402 payment payload: %w", err)
	}

	version, err := x402types.DetectVersion(raw)
	if err != nil {
		v, ok := versionOf(payment["x402Version"])
		if !ok {
			return nil, fmt.Errorf("unable to detect x402 version: %w", err)
		}
		version = v
	}
	if version >= 2 {
		if _, ok := payment["resource"].(map[string]any); !ok {
			return nil, errors.New("x402/payment metadata missing resource for v2 payment")
		}
		if _, ok := payment["accepted"].(map[string]any); !ok {
			return nil, errors.New("x402/payment metadata missing accepted for v2 payment")
		}
	}

	name := "X-PAYMENT"
	if version >= 2 {
		name = "PAYMENT-SIGNATURE"
	}
	return &paymentHeader{
		Name:    name,
		Value:   base64.StdEncoding.EncodeToString(raw),
		Version: version,
	}, nil
}

func versionOf(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// facilitatorPaymentRequired decodes the PAYMENT-REQUIRED header set by
// the x402 middleware on an unpaid facilitator route.
func facilitatorPaymentRequired(resp *http.Response) map[string]any {
	return decodeHeaderJSON(resp.Header.Get("PAYMENT-REQUIRED"))
}

// facilitatorSettlement decodes the settlement header of a paid facilitator
// route.
func facilitatorSettlement(resp *http.Response) map[string]any {
	if settled := decodeHeaderJSON(resp.Header.Get("PAYMENT-RESPONSE")); settled != nil {
		return settled
	}
	return decodeHeaderJSON(resp.Header.Get("X-PAYMENT-RESPONSE"))
}

func decodeHeaderJSON(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		if payload, err = base64.RawStdEncoding.DecodeString(raw); err != nil {
			return nil
		}
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil
	}
	return decoded
}
