package mcp

import "github.com/andrewreder/toolfi/go-api/catalog"

// ToolSummary describes one paid tool to an agent.
type ToolSummary struct {
	Name           string          `json:"name"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Provider       string          `json:"provider"`
	ToolID         uint64          `json:"toolId"`
	Price          string          `json:"price"`
	PriceFormatted string          `json:"priceFormatted"`
	Active         bool            `json:"active"`
	URL            string          `json:"url"`
	Params         []catalog.Param `json:"params"`
}

// SearchToolsParams defines parameters for the search_tools tool.
type SearchToolsParams struct {
	Query  string `json:"query,omitempty"  jsonschema:"Free text matched against name, title, description and provider"`
	Limit  *int   `json:"limit,omitempty"  jsonschema:"Optional pagination limit"`
	Offset *int   `json:"offset,omitempty" jsonschema:"Optional pagination offset"`
}

// Pagination is echoed back with every search_tools result.
type Pagination struct {
	Limit  *int `json:"limit,omitempty"`
	Offset *int `json:"offset,omitempty"`
	Total  int  `json:"total"`
}

// SearchToolsOutput is the structured output of search_tools.
type SearchToolsOutput struct {
	Pagination Pagination    `json:"pagination"`
	Protocol   string        `json:"protocol"`
	Tools      []ToolSummary `json:"tools"`
}

// GetToolParams defines parameters for the get_tool tool.
type GetToolParams struct {
	Name string `json:"name" jsonschema:"Tool name as returned by search_tools"`
}

// PaymentTerms tells an agent what to pay before calling a tool.
type PaymentTerms struct {
	Protocol     string   `json:"protocol"`
	ChainID      int64    `json:"chainId"`
	Network      string   `json:"network"`
	Contract     string   `json:"contract"`
	Token        string   `json:"token"`
	Instructions []string `json:"instructions"`
}

// ToolDetail is the structured output of get_tool.
type ToolDetail struct {
	Tool    *ToolSummary  `json:"tool,omitempty"`
	Payment *PaymentTerms `json:"payment,omitempty"`
}

// ProxyToolCallParams defines parameters for the proxy_tool_call tool.
type ProxyToolCallParams struct {
	ToolName   string         `json:"toolName"             jsonschema:"Tool name to call"`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"Query parameters of the call"`
	TxHash     string         `json:"txHash,omitempty"     jsonschema:"payForCall transaction hash; may also be sent in meta toolfi/payment.txHash"`
}

// toolArgs is the free-form input of the direct paid tools. Its schema is
// built from the catalog entry.
type toolArgs map[string]any
