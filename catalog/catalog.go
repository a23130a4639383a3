// Package catalog lists the paid endpoints this server sells and resolves
// each one to its registry id and current price.
package catalog

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/andrewreder/toolfi/go-api/chain"
	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/andrewreder/toolfi/go-api/x402"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnknownTool means no catalog entry has the requested name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrUnlisted means the tool has no registry id on this server.
	ErrUnlisted = errors.New("tool is not listed on the registry")
)

// Param documents one query parameter of a paid endpoint.
type Param struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

// Entry is one paid endpoint.
type Entry struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Path        string   `json:"path"`
	Description string   `json:"description"`
	Provider    string   `json:"provider"`
	Params      []Param  `json:"params"`
	Price       *big.Int `json:"-"`
}

// Default is the built-in list of paid endpoints. Prices are USDC base units.
func Default() []Entry {
	return []Entry{
		{
			Name:        "token_security",
			Title:       "Token Security Scan",
			Path:        "/api/token-security",
			Description: "Scan a token contract for honeypots, taxes and owner privileges, with a 0-100 risk score.",
			Provider:    "goplus",
			Params: []Param{
				{Name: "chain", Description: "chain name, e.g. ethereum, bsc, base", Required: true},
				{Name: "address", Description: "token contract address", Required: true},
			},
			Price: big.NewInt(10_000),
		},
		{
			Name:        "token_price",
			Title:       "Token Price",
			Path:        "/api/token-price",
			Description: "USD price and 24h change of a token by contract address, or of a coin by CoinGecko id.",
			Provider:    "coingecko",
			Params: []Param{
				{Name: "chain", Description: "chain name, with address"},
				{Name: "address", Description: "token contract address, with chain"},
				{Name: "coin", Description: "CoinGecko coin id such as bitcoin, instead of chain and address"},
				{Name: "include_market_cap", Description: "true to include market cap"},
			},
			Price: big.NewInt(5_000),
		},
		{
			Name:        "defi_yields",
			Title:       "DeFi Yields",
			Path:        "/api/defi-yields",
			Description: "Yield pools from DefiLlama filtered by chain, project, TVL and APY, highest APY first.",
			Provider:    "defillama",
			Params: []Param{
				{Name: "chain", Description: "chain name"},
				{Name: "project", Description: "protocol slug, e.g. aave-v3"},
				{Name: "min_tvl", Description: "minimum TVL in USD, default 100000"},
				{Name: "min_apy", Description: "minimum APY percent, default 1"},
				{Name: "max_apy", Description: "maximum APY percent, default 100"},
				{Name: "stablecoin_only", Description: "true for stablecoin pools only"},
				{Name: "limit", Description: "1-100, default 20"},
			},
			Price: big.NewInt(10_000),
		},
		{
			Name:        "bridge_quote",
			Title:       "Bridge Quote",
			Path:        "/api/bridge-quote",
			Description: "Best cross-chain bridge route from Li.Fi with amounts, gas cost and duration.",
			Provider:    "lifi",
			Params: []Param{
				{Name: "from_chain", Description: "source chain", Required: true},
				{Name: "to_chain", Description: "destination chain", Required: true},
				{Name: "from_token", Description: "token symbol or address on the source chain", Required: true},
				{Name: "to_token", Description: "token symbol or address on the destination chain", Required: true},
				{Name: "amount", Description: "amount in base units", Required: true},
				{Name: "from_address", Description: "sender address", Required: true},
			},
			Price: big.NewInt(10_000),
		},
		{
			Name:        "dex_search",
			Title:       "DEX Pair Search",
			Path:        "/api/dex-search",
			Description: "Search DexScreener trading pairs by token name, symbol or address.",
			Provider:    "dexscreener",
			Params: []Param{
				{Name: "q", Description: "search text", Required: true},
				{Name: "limit", Description: "1-50, default 10"},
			},
			Price: big.NewInt(5_000),
		},
		{
			Name:        "web_search",
			Title:       "Web Search",
			Path:        "/api/web-search",
			Description: "Web search results from Brave Search.",
			Provider:    "brave",
			Params: []Param{
				{Name: "q", Description: "search text", Required: true},
				{Name: "count", Description: "1-20, default 10"},
			},
			Price: big.NewInt(5_000),
		},
	}
}

// Listing is an entry joined with its registry state.
type Listing struct {
	Entry
	ToolID uint64   `json:"toolId"`
	Price  *big.Int `json:"price"`
	Active bool     `json:"active"`
}

// Book resolves catalog entries against the registry. With a ledger the
// name, price and active flag are read live; otherwise ids come from
// configuration and prices from overrides or the entry defaults.
type Book struct {
	entries  []Entry
	byName   map[string]int
	ids      map[string]uint64
	prices   map[string]*big.Int
	registry *ledger.Ledger
}

// Option configures a Book.
type Option func(*Book)

// WithLedger reads tool state from l.
func WithLedger(l *ledger.Ledger) Option {
	return func(b *Book) { b.registry = l }
}

// WithToolIDs maps entry names to registry ids.
func WithToolIDs(ids map[string]uint64) Option {
	return func(b *Book) {
		for k, v := range ids {
			b.ids[k] = v
		}
	}
}

// WithPrices overrides entry prices when no ledger is attached.
func WithPrices(prices map[string]*big.Int) Option {
	return func(b *Book) {
		for k, v := range prices {
			b.prices[k] = new(big.Int).Set(v)
		}
	}
}

// NewBook returns a book over entries. Without a ledger or configured ids,
// entries take registry ids 1..N in declaration order.
func NewBook(entries []Entry, opts ...Option) *Book {
	b := &Book{
		entries: entries,
		byName:  make(map[string]int, len(entries)),
		ids:     make(map[string]uint64),
		prices:  make(map[string]*big.Int),
	}
	for i, e := range entries {
		b.byName[e.Name] = i
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil && len(b.ids) == 0 {
		// a registry deployed by Bootstrap numbers the entries in order
		for i, e := range entries {
			b.ids[e.Name] = uint64(i + 1)
		}
	}
	return b
}

// Entries returns the catalog in declaration order.
func (b *Book) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

// Entry looks an entry up by name.
func (b *Book) Entry(name string) (Entry, bool) {
	i, ok := b.byName[name]
	if !ok {
		return Entry{}, false
	}
	return b.entries[i], true
}

// Resolve returns the gate's view of the named tool. Inactive tools fail
// with ledger.ErrToolInactive so no one is asked to pay for them.
func (b *Book) Resolve(name string) (x402.ToolRef, error) {
	l, err := b.listing(name)
	if err != nil {
		return x402.ToolRef{}, err
	}
	if !l.Active {
		return x402.ToolRef{}, fmt.Errorf("%s: %w", name, ledger.ErrToolInactive)
	}
	return x402.ToolRef{ID: l.ToolID, Name: l.Name, Price: l.Price}, nil
}

// Listings returns every entry that has a registry id, in catalog order.
func (b *Book) Listings() []Listing {
	out := make([]Listing, 0, len(b.entries))
	for _, e := range b.entries {
		l, err := b.listing(e.Name)
		if err != nil {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Search returns the listings whose name, title or description contain
// query, case-insensitively.
func (b *Book) Search(query string) []Listing {
	query = strings.ToLower(strings.TrimSpace(query))
	all := b.Listings()
	if query == "" {
		return all
	}
	out := make([]Listing, 0, len(all))
	for _, l := range all {
		text := strings.ToLower(l.Name + " " + l.Title + " " + l.Description + " " + l.Provider)
		if strings.Contains(text, query) {
			out = append(out, l)
		}
	}
	return out
}

// Names lists entry names, sorted.
func (b *Book) Names() []string {
	out := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

func (b *Book) listing(name string) (Listing, error) {
	entry, ok := b.Entry(name)
	if !ok {
		return Listing{}, fmt.Errorf("%q: %w", name, ErrUnknownTool)
	}
	id, ok := b.ids[name]
	if !ok || id == 0 {
		return Listing{}, fmt.Errorf("%s: %w", name, ErrUnlisted)
	}

	if b.registry != nil {
		tool, err := b.registry.GetTool(id)
		if err != nil {
			return Listing{}, fmt.Errorf("%s: %w", name, ErrUnlisted)
		}
		return Listing{Entry: entry, ToolID: id, Price: tool.PricePerCall, Active: tool.Active}, nil
	}

	price := entry.Price
	if p, ok := b.prices[name]; ok {
		price = p
	}
	return Listing{Entry: entry, ToolID: id, Price: new(big.Int).Set(price), Active: true}, nil
}

// Bootstrap registers every entry on the simulated chain as a tool created
// by operator and returns the assigned ids. prices overrides entry defaults.
func Bootstrap(sim *chain.Simulated, operator common.Address, entries []Entry, prices map[string]*big.Int) (map[string]uint64, error) {
	ids := make(map[string]uint64, len(entries))
	for _, e := range entries {
		price := e.Price
		if p, ok := prices[e.Name]; ok {
			price = p
		}
		_, ev, err := sim.Submit(operator, func(l *ledger.Ledger) (*ledger.Event, error) {
			return l.Register(operator, e.Name, e.Path, e.Description, price)
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", e.Name, err)
		}
		ids[e.Name] = ev.ToolID
	}
	return ids, nil
}
