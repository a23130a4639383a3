package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/provider"
	"github.com/andrewreder/toolfi/go-api/x402"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	maxProxyResponseBytes = 1 << 20 // 1MB

	facilitatorPrefix = "/x402"

	metaKeyX402PaymentRequired = "x402/payment-required"
	metaKeyX402PaymentResponse = "x402/payment-response"
)

// entrySchema builds the input schema of a direct paid tool from the
// documented query parameters of its catalog entry.
func entrySchema(entry catalog.Entry) map[string]any {
	props := map[string]any{}
	var required []string
	for _, p := range entry.Params {
		props[p.Name] = map[string]any{
			"type":        []string{"string", "number", "boolean"},
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// paymentMeta advertises a tool's price in its definition.
func paymentMeta(entry catalog.Entry, listing catalog.Listing, formatted string) map[string]any {
	return map[string]any{
		x402.MetaKeyPaymentRequired: map[string]any{
			"protocol":       x402.ProtocolTag,
			"toolId":         listing.ToolID,
			"price":          listing.Price.String(),
			"priceFormatted": formatted,
			"metaKey":        x402.MetaKeyPaymentTx,
		},
		"toolfi/http": map[string]any{
			"method": http.MethodGet,
			"path":   entry.Path,
		},
	}
}

func queryFromArgs(args map[string]any) provider.Query {
	q := provider.Query{}
	for key, value := range args {
		if value == nil {
			continue
		}
		q[key] = stringify(value)
	}
	return q
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func proxyRequest(
	ctx context.Context,
	rawURL string,
	params map[string]any,
	headers map[string]string,
) (*http.Request, error) {
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tool url: %w", err)
	}
	query := endpoint.Query()
	for key, value := range queryFromArgs(params) {
		query.Set(key, value)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// apiResponse is the subset of an HTTP API body the proxy interprets.
type apiResponse struct {
	Status  string            `json:"status"`
	Payment *x402.PaymentInfo `json:"payment"`
	Error   *x402.Rejection   `json:"error"`
}

func httpResponseToMCPResult(resp *http.Response) (*mcp.CallToolResult, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy response: %w", err)
	}

	if required := facilitatorPaymentRequired(resp); required != nil {
		text, err := json.Marshal(required)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payment-required payload: %w", err)
		}
		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
			StructuredContent: required,
			IsError:           true,
			Meta:              map[string]any{metaKeyX402PaymentRequired: required},
		}, nil
	}

	var decoded map[string]any
	_ = json.Unmarshal(bodyBytes, &decoded)
	var parsed apiResponse
	_ = json.Unmarshal(bodyBytes, &parsed)

	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(bodyBytes)}},
		IsError: resp.StatusCode >= http.StatusBadRequest,
	}
	if decoded != nil {
		result.StructuredContent = decoded
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired && parsed.Status == x402.StatusPaymentRequired:
		result.Meta = map[string]any{x402.MetaKeyPaymentRequired: decoded}
	case resp.StatusCode == http.StatusPaymentRequired && parsed.Error != nil:
		result.Meta = map[string]any{x402.MetaKeyPaymentResponse: &x402.PaymentResponse{
			ErrorReason: parsed.Error.Code,
			Retryable:   parsed.Error.Retryable,
		}}
	case resp.StatusCode < http.StatusBadRequest:
		result.Meta = map[string]any{x402.MetaKeyPaymentResponse: &x402.PaymentResponse{
			Success: true,
			Payment: parsed.Payment,
		}}
		if settled := facilitatorSettlement(resp); settled != nil {
			result.Meta[metaKeyX402PaymentResponse] = settled
		}
	}
	return result, nil
}
