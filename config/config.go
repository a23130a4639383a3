// Package config loads server settings from flags, the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

const (
	ChainSimulated = "simulated"
	ChainRPC       = "rpc"
)

type ChainOptions struct {
	Mode          string `long:"mode" env:"MODE" default:"simulated" choice:"simulated" choice:"rpc" description:"where payments are looked up"`
	RPCURL        string `long:"rpc-url" env:"RPC_URL" description:"JSON-RPC endpoint, required in rpc mode"`
	ID            int64  `long:"id" env:"ID" default:"84532" description:"chain id advertised to payers"`
	Network       string `long:"network" env:"NETWORK" default:"base-sepolia" description:"network name advertised to payers"`
	Registry      string `long:"registry" env:"REGISTRY_ADDRESS" description:"ToolRegistry contract address; empty in rpc mode accepts unverified references"`
	Token         string `long:"token" env:"TOKEN_ADDRESS" default:"0x036CbD53842c5426634e7929541eC2318f3dCF7e" description:"payment token address"`
	TokenSymbol   string `long:"token-symbol" env:"TOKEN_SYMBOL" default:"USDC" description:"payment token symbol"`
	TokenDecimals int32  `long:"token-decimals" env:"TOKEN_DECIMALS" default:"6" description:"payment token decimals"`
	Operator      string `long:"operator" env:"OPERATOR_ADDRESS" default:"0x00000000000000000000000000000000000f00d5" description:"creator of the built-in tools on the simulated chain"`
}

type VerifyOptions struct {
	Timeout      time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"deadline of one chain lookup"`
	CacheTTL     time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"24h" description:"how long verified payments are remembered"`
	CacheEntries int           `long:"cache-entries" env:"CACHE_ENTRIES" default:"100000" description:"in-memory cache bound"`
	RedisURL     string        `long:"redis-url" env:"REDIS_URL" description:"share the verification cache through redis"`
}

type FacilitatorOptions struct {
	URL          string `long:"url" env:"FACILITATOR_URL" description:"x402 facilitator for the /x402 routes"`
	APIKeyID     string `long:"cdp-api-key" env:"CDP_API_KEY" description:"CDP API key id"`
	APIKeySecret string `long:"cdp-api-key-secret" env:"CDP_API_KEY_SECRET" description:"CDP API key secret"`
	PayTo        string `long:"pay-to" env:"FACILITATOR_PAY_TO" description:"receiving address; enables the /x402 routes"`
	Network      string `long:"network" env:"FACILITATOR_NETWORK" default:"eip155:84532" description:"CAIP-2 network of facilitator payments"`
}

type ProviderOptions struct {
	GoPlusKey    string `long:"goplus-key" env:"GOPLUS_API_KEY" description:"GoPlus API key"`
	CoinGeckoKey string `long:"coingecko-key" env:"COINGECKO_API_KEY" description:"CoinGecko pro API key"`
	BraveKey     string `long:"brave-key" env:"BRAVE_API_KEY" description:"Brave Search subscription token"`
}

type ToolOptions struct {
	IDs    map[string]uint64 `long:"id" env:"TOOL_IDS" env-delim:"," description:"registry id of a paid tool in rpc mode, name:id; unset ids follow catalog order"`
	Prices map[string]string `long:"price" env:"TOOL_PRICES" env-delim:"," description:"price of a paid tool in token base units, name:amount"`
}

// Options is the full server configuration. The struct tags are interpreted
// by github.com/jessevdk/go-flags.
type Options struct {
	Addr         string `long:"addr" env:"TOOLFI_ADDR" default:":8080" description:"HTTP listen address"`
	BaseURL      string `long:"base-url" env:"TOOLFI_BASE_URL" default:"http://localhost:8080" description:"public URL of this server"`
	Debug        bool   `long:"debug" env:"TOOLFI_DEBUG" description:"debug logging"`
	DatabasePath string `long:"db" env:"TOOLFI_DB_PATH" default:"toolfi.db" description:"sqlite database path"`
	EnvFile      string `long:"env-file" default:".env" description:"dotenv file loaded before parsing"`

	Chain       ChainOptions       `group:"Chain" namespace:"chain" env-namespace:"CHAIN"`
	Verify      VerifyOptions      `group:"Verification" namespace:"verify" env-namespace:"VERIFY"`
	Facilitator FacilitatorOptions `group:"Facilitator" namespace:"facilitator"`
	Providers   ProviderOptions    `group:"Providers"`
	Tools       ToolOptions        `group:"Tools" namespace:"tool" env-namespace:"TOOLFI"`
}

// Load reads an optional .env file, then parses args with the environment as
// fallback. Variables already set in the environment win over the file.
func Load(args []string) (*Options, error) {
	if err := godotenv.Load(envFile(args)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// envFile finds --env-file in args before the parser runs.
func envFile(args []string) string {
	for i, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return v
		}
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ".env"
}

// Validate checks cross-field constraints the tags cannot express.
func (o *Options) Validate() error {
	if o.Chain.Mode == ChainRPC && o.Chain.RPCURL == "" && o.Chain.Registry != "" {
		return errors.New("chain.rpc-url is required in rpc mode")
	}
	for name, raw := range map[string]string{
		"chain.registry":     o.Chain.Registry,
		"chain.token":        o.Chain.Token,
		"chain.operator":     o.Chain.Operator,
		"facilitator.pay-to": o.Facilitator.PayTo,
	} {
		if raw != "" && !common.IsHexAddress(raw) {
			return fmt.Errorf("%s: %q is not an address", name, raw)
		}
	}
	if o.Chain.TokenDecimals < 0 || o.Chain.TokenDecimals > 36 {
		return fmt.Errorf("chain.token-decimals out of range: %d", o.Chain.TokenDecimals)
	}
	if _, err := o.ToolPrices(); err != nil {
		return err
	}
	return nil
}

// RegistryAddress is the configured registry, or the zero address.
func (o *Options) RegistryAddress() common.Address {
	if o.Chain.Registry == "" {
		return common.Address{}
	}
	return common.HexToAddress(o.Chain.Registry)
}

// ToolPrices parses the per-tool price overrides.
func (o *Options) ToolPrices() (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(o.Tools.Prices))
	for name, raw := range o.Tools.Prices {
		v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
		if !ok || v.Sign() <= 0 {
			return nil, fmt.Errorf("tool.price %s: %q is not a positive integer", name, raw)
		}
		out[name] = v
	}
	return out, nil
}
