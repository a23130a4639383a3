package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/models"
	"github.com/andrewreder/toolfi/go-api/provider"
	"github.com/andrewreder/toolfi/go-api/storage"
	"github.com/andrewreder/toolfi/go-api/x402"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type toolHandler = func(context.Context, *mcp.CallToolRequest, toolArgs) (*mcp.CallToolResult, any, error)

// registerPaidTools exposes every listed catalog entry as a tool of the same
// name, gated on a payForCall reference in meta toolfi/payment.txHash.
func (s *Server) registerPaidTools() {
	for _, listing := range s.cfg.Book.Listings() {
		p, ok := s.cfg.Providers[listing.Name]
		if !ok {
			continue
		}
		entry := listing.Entry
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        entry.Name,
			Title:       entry.Title,
			Description: fmt.Sprintf("%s Costs %s per call.", entry.Description, s.cfg.Gate.FormatPrice(listing.Price)),
			InputSchema: entrySchema(entry),
			Meta:        paymentMeta(entry, listing, s.cfg.Gate.FormatPrice(listing.Price)),
		}, s.paidTool(entry, p))
	}
}

func (s *Server) registerFreeTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "supported_chains",
		Title:       "Supported Chains",
		Description: "Lists the chains and chain ids the paid tools accept. Free.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ *struct{}) (*mcp.CallToolResult, any, error) {
		return jsonResult(provider.SupportedChains())
	})

	if s.cfg.CoinGecko == nil {
		return
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "trending_coins",
		Title:       "Trending Coins",
		Description: "Coins trending on CoinGecko in the last 24 hours. Free.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ *struct{}) (*mcp.CallToolResult, any, error) {
		data, err := s.cfg.CoinGecko.Trending(ctx)
		if err != nil {
			return textError(err.Error()), nil, nil
		}
		return jsonResult(data)
	})
}

// paidTool validates the arguments, then runs the provider behind the gate.
// Served calls are recorded with the payment that authorized them.
func (s *Server) paidTool(entry catalog.Entry, p provider.Provider) toolHandler {
	resolve := func(ctx context.Context) (x402.ToolRef, error) {
		return s.cfg.Book.Resolve(entry.Name)
	}
	gated := x402.WrapToolHandler(s.cfg.Gate, resolve,
		func(ctx context.Context, req *mcp.CallToolRequest, args toolArgs) (*mcp.CallToolResult, any, error) {
			ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
			defer cancel()
			data, err := p.Fetch(ctx, queryFromArgs(args))
			if err != nil {
				return textError(fmt.Sprintf("%s failed: %v", entry.Name, err)), nil, nil
			}
			return jsonResult(data)
		})

	return func(ctx context.Context, req *mcp.CallToolRequest, args toolArgs) (*mcp.CallToolResult, any, error) {
		q := queryFromArgs(args)
		if err := p.Validate(q); err != nil {
			return textError(fmt.Sprintf("Invalid input: %v", err)), nil, nil
		}
		start := time.Now()
		result, out, err := gated(ctx, req, args)
		if err == nil {
			s.recordCall(ctx, entry, q, result, time.Since(start))
		}
		return result, out, err
	}
}

func (s *Server) recordCall(ctx context.Context, entry catalog.Entry, q provider.Query, result *mcp.CallToolResult, took time.Duration) {
	if s.cfg.Store == nil || result == nil {
		return
	}
	resp, ok := result.Meta[x402.MetaKeyPaymentResponse].(*x402.PaymentResponse)
	if !ok || !resp.Success || resp.Payment == nil {
		return
	}
	queryJSON, _ := json.Marshal(q)
	call := &models.ToolCall{
		RequestID:  uuid.NewString(),
		ToolID:     resp.Payment.ToolID,
		ToolName:   entry.Name,
		Surface:    "mcp",
		Caller:     resp.Payment.Caller,
		TxRef:      resp.Payment.TxRef,
		Mode:       resp.Payment.Mode,
		QueryJSON:  string(queryJSON),
		DurationMs: took.Milliseconds(),
		Success:    !result.IsError,
	}
	if result.IsError && len(result.Content) > 0 {
		if text, ok := result.Content[0].(*mcp.TextContent); ok {
			call.ErrorMessage = text.Text
		}
	}
	storage.RecordCall(ctx, s.cfg.Store, s.log, call)
}

func jsonResult(data any) (*mcp.CallToolResult, any, error) {
	text, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}, nil, nil
}
