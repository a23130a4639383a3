package provider

import (
	"sort"
	"strings"
)

var goplusChains = map[string]string{
	"ethereum":  "1",
	"eth":       "1",
	"bsc":       "56",
	"binance":   "56",
	"polygon":   "137",
	"matic":     "137",
	"arbitrum":  "42161",
	"arb":       "42161",
	"base":      "8453",
	"optimism":  "10",
	"op":        "10",
	"avalanche": "43114",
	"avax":      "43114",
	"solana":    "solana",
	"sol":       "solana",
	"linea":     "59144",
	"zksync":    "324",
	"scroll":    "534352",
	"blast":     "81457",
	"mantle":    "5000",
}

var coingeckoPlatforms = map[string]string{
	"ethereum":  "ethereum",
	"eth":       "ethereum",
	"bsc":       "binance-smart-chain",
	"binance":   "binance-smart-chain",
	"polygon":   "polygon-pos",
	"matic":     "polygon-pos",
	"arbitrum":  "arbitrum-one",
	"arb":       "arbitrum-one",
	"base":      "base",
	"optimism":  "optimistic-ethereum",
	"op":        "optimistic-ethereum",
	"avalanche": "avalanche",
	"avax":      "avalanche",
	"solana":    "solana",
	"sol":       "solana",
}

var lifiChains = map[string]int{
	"ethereum":  1,
	"eth":       1,
	"arbitrum":  42161,
	"arb":       42161,
	"base":      8453,
	"polygon":   137,
	"matic":     137,
	"optimism":  10,
	"op":        10,
	"bsc":       56,
	"binance":   56,
	"avalanche": 43114,
	"avax":      43114,
}

var defillamaChains = map[string]string{
	"ethereum":  "Ethereum",
	"eth":       "Ethereum",
	"bsc":       "BSC",
	"binance":   "BSC",
	"polygon":   "Polygon",
	"matic":     "Polygon",
	"arbitrum":  "Arbitrum",
	"arb":       "Arbitrum",
	"base":      "Base",
	"optimism":  "Optimism",
	"op":        "Optimism",
	"avalanche": "Avalanche",
	"avax":      "Avalanche",
	"solana":    "Solana",
	"sol":       "Solana",
}

func lookupChain[V any](table map[string]V, chain string) (V, bool) {
	v, ok := table[strings.ToLower(strings.TrimSpace(chain))]
	return v, ok
}

// SupportedChains lists the chain names each provider accepts, aliases
// included.
func SupportedChains() map[string][]string {
	return map[string][]string{
		"goplus":    keys(goplusChains),
		"coingecko": keys(coingeckoPlatforms),
		"defillama": keys(defillamaChains),
		"lifi":      keys(lifiChains),
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
