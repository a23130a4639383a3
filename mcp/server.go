// Package mcp exposes the paid tool catalog to AI agents over the Model
// Context Protocol. Agents discover tools, read their payment terms and call
// them with a payForCall transaction hash in the request meta.
package mcp

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/provider"
	"github.com/andrewreder/toolfi/go-api/storage"
	"github.com/andrewreder/toolfi/go-api/x402"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

const (
	defaultFetchTimeout = 20 * time.Second
	defaultProxyTimeout = 30 * time.Second
)

// Config holds the dependencies of the MCP server. Store, CoinGecko and
// HTTPClient are optional.
type Config struct {
	Book      *catalog.Book
	Gate      *x402.Gate
	Providers map[string]provider.Provider
	CoinGecko *provider.CoinGecko
	Store     storage.Storage

	// BaseURL is where proxy_tool_call reaches the HTTP API.
	BaseURL    string
	HTTPClient *http.Client

	FetchTimeout time.Duration
	Logger       zerolog.Logger
}

// Server wraps the MCP server implementation.
type Server struct {
	mcpServer *mcp.Server
	cfg       Config
	client    *http.Client
	log       zerolog.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Book == nil || cfg.Gate == nil {
		return nil, errors.New("mcp: book and gate are required")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultProxyTimeout}
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "toolfi",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Pay-per-call crypto data tools. Call search_tools, pay with payForCall on the registry, " +
				"then call the tool with the transaction hash in meta " + x402.MetaKeyPaymentTx + ".",
		},
	)

	s := &Server{
		mcpServer: mcpServer,
		cfg:       cfg,
		client:    client,
		log:       cfg.Logger.With().Str("component", "mcp").Logger(),
	}
	s.registerTools()
	return s, nil
}

// Handler returns an http.Handler for the MCP streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

// MCPServer returns the underlying server, e.g. to connect an in-process
// transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
