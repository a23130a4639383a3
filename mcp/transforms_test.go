package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/x402"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(status int, header http.Header, body string) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(strings.NewReader(body))}
}

func encodeHeader(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestPaymentSignatureHeaderV2(t *testing.T) {
	t.Parallel()

	header, err := paymentSignatureHeader(map[string]any{
		"x402Version": 2,
		"resource":    map[string]any{"url": "http://toolfi.test/x402/api/token-security"},
		"accepted":    map[string]any{"scheme": "exact", "network": "eip155:84532"},
		"payload":     map[string]any{"signature": "0xdeadbeef"},
	})
	require.NoError(t, err)
	assert.Equal(t, "PAYMENT-SIGNATURE", header.Name)
	assert.Equal(t, 2, header.Version)

	decoded, err := base64.StdEncoding.DecodeString(header.Value)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(decoded, &payload))
	assert.Equal(t, float64(2), payload["x402Version"])
	assert.Equal(t, "0xdeadbeef", payload["payload"].(map[string]any)["signature"])
}

func TestPaymentSignatureHeaderV1UsesXPayment(t *testing.T) {
	t.Parallel()

	header, err := paymentSignatureHeader(map[string]any{
		"x402Version": 1,
		"scheme":      "exact",
		"network":     "base-sepolia",
		"payload":     map[string]any{"signature": "0xdeadbeef"},
	})
	require.NoError(t, err)
	assert.Equal(t, "X-PAYMENT", header.Name)
}

func TestPaymentSignatureHeaderRejectsIncompletePayloads(t *testing.T) {
	t.Parallel()

	_, err := paymentSignatureHeader(map[string]any{"x402Version": 2})
	assert.ErrorContains(t, err, "missing payload")

	_, err = paymentSignatureHeader(map[string]any{
		"x402Version": 2,
		"payload":     map[string]any{"signature": "0x01"},
	})
	assert.ErrorContains(t, err, "missing resource")
}

func TestResultFromDescriptor(t *testing.T) {
	t.Parallel()

	body := `{"status":"payment_required","protocol":"toolfi-x402/v1","payment":{"toolId":1,"price":10000}}`
	result, err := httpResponseToMCPResult(response(http.StatusPaymentRequired, nil, body))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	require.Contains(t, result.Meta, x402.MetaKeyPaymentRequired)
	structured, ok := result.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "payment_required", structured["status"])
}

func TestResultFromRejection(t *testing.T) {
	t.Parallel()

	body := `{"request_id":"r","error":{"code":"chain_unavailable","message":"chain unavailable, retry later","retryable":true}}`
	result, err := httpResponseToMCPResult(response(http.StatusPaymentRequired, nil, body))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	resp, ok := result.Meta[x402.MetaKeyPaymentResponse].(*x402.PaymentResponse)
	require.True(t, ok)
	assert.False(t, resp.Success)
	assert.Equal(t, "chain_unavailable", resp.ErrorReason)
	assert.True(t, resp.Retryable)
}

func TestResultFromPaidResponse(t *testing.T) {
	t.Parallel()

	body := `{"tool":{"id":1},"payment":{"toolId":1,"caller":"0xabc","verified":true,"txRef":"0x01","mode":"verified"},"data":{"ok":true}}`
	result, err := httpResponseToMCPResult(response(http.StatusOK, nil, body))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	resp, ok := result.Meta[x402.MetaKeyPaymentResponse].(*x402.PaymentResponse)
	require.True(t, ok)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Payment)
	assert.Equal(t, "0xabc", resp.Payment.Caller)

	text, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, body, text.Text)
}

func TestResultFromFacilitatorHeaders(t *testing.T) {
	t.Parallel()

	required := map[string]any{"x402Version": 2, "accepts": []any{map[string]any{"scheme": "exact"}}}
	result, err := httpResponseToMCPResult(response(http.StatusPaymentRequired, http.Header{
		"Payment-Required": []string{encodeHeader(t, required)},
	}, `{"error":"Payment required"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Meta, metaKeyX402PaymentRequired)

	settled := map[string]any{"success": true, "network": "eip155:84532"}
	result, err = httpResponseToMCPResult(response(http.StatusOK, http.Header{
		"X-Payment-Response": []string{encodeHeader(t, settled)},
	}, `{"data":{}}`))
	require.NoError(t, err)
	assert.Contains(t, result.Meta, metaKeyX402PaymentResponse)
}

func TestUpstreamErrorIsToolError(t *testing.T) {
	t.Parallel()

	result, err := httpResponseToMCPResult(response(http.StatusBadRequest, nil, `{"error":{"code":"bad_query"}}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Nil(t, result.Meta)
}

func TestProxyRequestCarriesQueryAndHeaders(t *testing.T) {
	t.Parallel()

	req, err := proxyRequest(context.Background(), "http://toolfi.test/api/token-price?x=1", map[string]any{
		"ids":     "bitcoin",
		"chainId": float64(8453),
		"full":    true,
	}, map[string]string{x402.HeaderPaymentTx: "0xfeed"})
	require.NoError(t, err)
	q := req.URL.Query()
	assert.Equal(t, "1", q.Get("x"))
	assert.Equal(t, "bitcoin", q.Get("ids"))
	assert.Equal(t, "8453", q.Get("chainId"))
	assert.Equal(t, "true", q.Get("full"))
	assert.Equal(t, "0xfeed", req.Header.Get(x402.HeaderPaymentTx))
}

func TestEntrySchema(t *testing.T) {
	t.Parallel()

	entry, ok := catalog.NewBook(catalog.Default()).Entry("token_security")
	require.True(t, ok)
	schema := entrySchema(entry)
	assert.Equal(t, "object", schema["type"])
	assert.NotEmpty(t, schema["required"])
	props := schema["properties"].(map[string]any)
	for _, p := range entry.Params {
		assert.Contains(t, props, p.Name)
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5}
	two, four, ten := 2, 4, 10

	page, p := paginate(items, &two, &two)
	assert.Equal(t, []int{3, 4}, page)
	assert.Equal(t, 5, p.Total)

	page, _ = paginate(items, &two, &four)
	assert.Equal(t, []int{5}, page)

	page, _ = paginate(items, nil, &ten)
	assert.Empty(t, page)

	page, p = paginate(items, nil, nil)
	assert.Len(t, page, 5)
	assert.Nil(t, p.Limit)
}
