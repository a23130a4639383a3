package x402

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolResolver returns the current id, name and price of a paid tool.
type ToolResolver func(ctx context.Context) (ToolRef, error)

// Validator is implemented by tool inputs that can reject themselves before
// any payment is looked at.
type Validator interface {
	Validate() error
}

// PaymentResponse is the MCP result meta describing the payment decision.
type PaymentResponse struct {
	Success     bool         `json:"success"`
	Payment     *PaymentInfo `json:"payment,omitempty"`
	ErrorReason string       `json:"errorReason,omitempty"`
	Retryable   bool         `json:"retryable,omitempty"`
}

// WrapToolHandler puts an MCP tool handler behind the gate. The payment
// reference is read from request meta MetaKeyPaymentTx.
func WrapToolHandler[In, Out any](
	g *Gate,
	resolve ToolResolver,
	handler func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, Out, error),
) func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, Out, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		var zero Out

		if v, ok := any(input).(Validator); ok {
			if err := v.Validate(); err != nil {
				return errorResult(fmt.Sprintf("Invalid input: %v", err), nil), zero, nil
			}
		}

		tool, err := resolve(ctx)
		if err != nil {
			return errorResult(err.Error(), nil), zero, nil
		}

		decision := g.Authorize(ctx, PaymentRefFromMeta(req), tool)
		switch decision.Kind {
		case PaymentRequired:
			body, _ := json.Marshal(decision.Required)
			return errorResult(string(body), map[string]any{
				MetaKeyPaymentRequired: decision.Required,
			}), zero, nil
		case Rejected:
			return errorResult(
				fmt.Sprintf("Payment rejected (%s): %s", decision.Rejection.Code, decision.Rejection.Message),
				map[string]any{MetaKeyPaymentResponse: &PaymentResponse{
					ErrorReason: decision.Rejection.Code,
					Retryable:   decision.Rejection.Retryable,
				}},
			), zero, nil
		}

		result, out, err := handler(ctx, req, input)
		if err != nil {
			return result, out, err
		}
		if result == nil {
			result = &mcp.CallToolResult{}
		}
		if result.Meta == nil {
			result.Meta = make(map[string]any)
		}
		result.Meta[MetaKeyPaymentResponse] = &PaymentResponse{Success: true, Payment: decision.Payment}
		return result, out, nil
	}
}

// PaymentRefFromMeta extracts the payment transaction hash from request meta.
func PaymentRefFromMeta(req *mcp.CallToolRequest) string {
	if req == nil || req.Params == nil {
		return ""
	}
	meta := req.Params.GetMeta()
	if meta == nil {
		return ""
	}
	ref, _ := meta[MetaKeyPaymentTx].(string)
	return ref
}

func errorResult(text string, meta map[string]any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		Meta:    meta,
	}
}
