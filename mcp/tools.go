package mcp

import (
	"context"
	"fmt"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/x402"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MetaKeyX402Payment carries a signed x402 payment payload for the
// facilitator routes.
const MetaKeyX402Payment = "x402/payment"

// registerTools registers discovery, proxy and the direct paid tools.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "search_tools",
		Title:       "Search Paid Tools",
		Description: "Discover the paid crypto data tools on this server with their registry id and price. Use query to filter by text.",
		Meta: map[string]any{
			"toolfi/usage": map[string]any{
				"step": "discover",
				"next": "get_tool",
			},
		},
	}, s.SearchTools)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_tool",
		Title:       "Get Tool Payment Terms",
		Description: "Returns one tool and the exact payForCall steps needed before calling it.",
		Meta: map[string]any{
			"toolfi/usage": map[string]any{
				"step": "quote",
				"next": "proxy_tool_call",
			},
		},
	}, s.GetTool)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "proxy_tool_call",
		Title:       "Execute Paid Tool",
		Description: "Executes a paid tool through the HTTP API. Provide toolName, parameters and the payForCall transaction hash.",
		Meta: map[string]any{
			"toolfi/usage": map[string]any{
				"step": "execute",
				"via":  "proxy_tool_call",
			},
		},
	}, s.ProxyToolCall)

	s.registerPaidTools()
	s.registerFreeTools()
}

// SearchTools lists catalog tools matching the query.
func (s *Server) SearchTools(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params *SearchToolsParams,
) (*mcp.CallToolResult, SearchToolsOutput, error) {
	listings := s.cfg.Book.Search(params.Query)
	paged, pagination := paginate(listings, params.Limit, params.Offset)
	tools := make([]ToolSummary, 0, len(paged))
	for _, l := range paged {
		tools = append(tools, s.summary(l))
	}
	return nil, SearchToolsOutput{
		Pagination: pagination,
		Protocol:   x402.ProtocolTag,
		Tools:      tools,
	}, nil
}

// GetTool returns a tool with its current payment terms.
func (s *Server) GetTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params *GetToolParams,
) (*mcp.CallToolResult, ToolDetail, error) {
	listing, ok := s.findListing(params.Name)
	if !ok {
		return textError(fmt.Sprintf("tool %q not found", params.Name)), ToolDetail{}, nil
	}
	terms := s.cfg.Gate.Descriptor(x402.ToolRef{ID: listing.ToolID, Name: listing.Name, Price: listing.Price})
	summary := s.summary(listing)
	return nil, ToolDetail{
		Tool: &summary,
		Payment: &PaymentTerms{
			Protocol:     terms.Protocol,
			ChainID:      terms.Payment.ChainID,
			Network:      terms.Payment.Network,
			Contract:     terms.Payment.Contract,
			Token:        terms.Payment.Token,
			Instructions: terms.Payment.Instructions,
		},
	}, nil
}

// ProxyToolCall calls a paid HTTP endpoint on behalf of the agent. The
// payment reference comes from meta toolfi/payment.txHash or txHash. A
// signed x402 payload in meta x402/payment is sent to the facilitator
// mirror of the endpoint instead.
func (s *Server) ProxyToolCall(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params *ProxyToolCallParams,
) (*mcp.CallToolResult, any, error) {
	if params.ToolName == "" {
		return textError("Error: 'toolName' parameter is required."), nil, nil
	}
	entry, ok := s.cfg.Book.Entry(params.ToolName)
	if !ok {
		return textError(fmt.Sprintf("tool %q not found", params.ToolName)), nil, nil
	}

	headers := map[string]string{}
	path := entry.Path
	if ref := x402.PaymentRefFromMeta(req); ref != "" {
		headers[x402.HeaderPaymentTx] = ref
	} else if params.TxHash != "" {
		headers[x402.HeaderPaymentTx] = params.TxHash
	} else if payment := x402PaymentFromMeta(req); payment != nil {
		header, err := paymentSignatureHeader(payment)
		if err != nil {
			return textError(fmt.Sprintf("Error: invalid x402 payment metadata: %v", err)), nil, nil
		}
		headers[header.Name] = header.Value
		path = facilitatorPrefix + entry.Path
	}

	httpReq, err := proxyRequest(ctx, s.cfg.BaseURL+path, params.Parameters, headers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build proxy request: %w", err)
	}
	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("proxy request failed: %w", err)
	}
	defer httpResp.Body.Close()

	result, err := httpResponseToMCPResult(httpResp)
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

func (s *Server) summary(l catalog.Listing) ToolSummary {
	return ToolSummary{
		Name:           l.Name,
		Title:          l.Title,
		Description:    l.Description,
		Provider:       l.Provider,
		ToolID:         l.ToolID,
		Price:          l.Price.String(),
		PriceFormatted: s.cfg.Gate.FormatPrice(l.Price),
		Active:         l.Active,
		URL:            s.cfg.BaseURL + l.Path,
		Params:         l.Params,
	}
}

func (s *Server) findListing(name string) (catalog.Listing, bool) {
	for _, l := range s.cfg.Book.Listings() {
		if l.Name == name {
			return l, true
		}
	}
	return catalog.Listing{}, false
}

func x402PaymentFromMeta(req *mcp.CallToolRequest) map[string]any {
	if req == nil || req.Params == nil {
		return nil
	}
	meta := req.Params.GetMeta()
	if meta == nil {
		return nil
	}
	payment, _ := meta[MetaKeyX402Payment].(map[string]any)
	return payment
}

func textError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
