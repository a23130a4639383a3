package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	opts, err := Load([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, ":8080", opts.Addr)
	assert.Equal(t, ChainSimulated, opts.Chain.Mode)
	assert.Equal(t, int64(84532), opts.Chain.ID)
	assert.Equal(t, int32(6), opts.Chain.TokenDecimals)
	assert.Equal(t, 10*time.Second, opts.Verify.Timeout)
	assert.Equal(t, 24*time.Hour, opts.Verify.CacheTTL)
	assert.Equal(t, 100000, opts.Verify.CacheEntries)
	assert.Equal(t, common.Address{}, opts.RegistryAddress())
}

func TestLoadFlags(t *testing.T) {
	opts, err := Load([]string{
		"--env-file=" + filepath.Join(t.TempDir(), "missing.env"),
		"--chain.mode", "rpc",
		"--chain.rpc-url", "http://localhost:8545",
		"--chain.registry", "0x00000000000000000000000000000000000000aa",
		"--verify.timeout", "3s",
		"--tool.id", "token_security:4",
		"--tool.price", "token_security:25000",
		"--debug",
	})
	require.NoError(t, err)

	assert.True(t, opts.Debug)
	assert.Equal(t, ChainRPC, opts.Chain.Mode)
	assert.Equal(t, common.HexToAddress("0xaa"), opts.RegistryAddress())
	assert.Equal(t, 3*time.Second, opts.Verify.Timeout)
	assert.Equal(t, uint64(4), opts.Tools.IDs["token_security"])

	prices, err := opts.ToolPrices()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(25000), prices["token_security"])
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("CHAIN_NETWORK", "base")
	t.Setenv("VERIFY_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("GOPLUS_API_KEY", "gp")
	t.Setenv("TOOLFI_TOOL_IDS", "token_security:1,web_search:6")

	opts, err := Load([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "base", opts.Chain.Network)
	assert.Equal(t, "redis://localhost:6379/0", opts.Verify.RedisURL)
	assert.Equal(t, "gp", opts.Providers.GoPlusKey)
	assert.Equal(t, map[string]uint64{"token_security": 1, "web_search": 6}, opts.Tools.IDs)
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BRAVE_API_KEY=from-file\nCOINGECKO_API_KEY=from-file\n"), 0o600))
	t.Setenv("COINGECKO_API_KEY", "from-env")

	opts, err := Load([]string{"--env-file", path})
	require.NoError(t, err)

	assert.Equal(t, "from-file", opts.Providers.BraveKey)
	assert.Equal(t, "from-env", opts.Providers.CoinGeckoKey)
	// godotenv sets process variables; drop the one this test introduced.
	require.NoError(t, os.Unsetenv("BRAVE_API_KEY"))
}

func TestLoadRejectsInvalid(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")
	cases := map[string][]string{
		"unknown mode":     {"--chain.mode", "testnet"},
		"bad registry":     {"--chain.registry", "alice"},
		"rpc without url":  {"--chain.mode", "rpc", "--chain.registry", "0x00000000000000000000000000000000000000aa"},
		"bad price":        {"--tool.price", "token_security:free"},
		"zero price":       {"--tool.price", "token_security:0"},
		"decimal overflow": {"--chain.token-decimals", "99"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(append([]string{"--env-file", missing}, args...))
			assert.Error(t, err)
		})
	}
}
