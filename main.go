package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/chain"
	"github.com/andrewreder/toolfi/go-api/config"
	httpapi "github.com/andrewreder/toolfi/go-api/http-api"
	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/andrewreder/toolfi/go-api/mcp"
	"github.com/andrewreder/toolfi/go-api/provider"
	"github.com/andrewreder/toolfi/go-api/storage"
	"github.com/andrewreder/toolfi/go-api/verifier"
	"github.com/andrewreder/toolfi/go-api/x402"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
)

// simulatedRegistry is the registry address of the in-process chain when
// none is configured.
var simulatedRegistry = common.HexToAddress("0x0000000000000000000000000000000000007001")

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := config.Load(os.Args[1:])
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Println(ferr.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := newLogger(opts.Debug)
	if err := run(opts, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", "toolfi").Logger()
}

func run(opts *config.Options, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewSQLiteStorage(storage.Config{DatabasePath: opts.DatabasePath, Debug: opts.Debug})
	if err != nil {
		return err
	}
	defer store.Close()

	prices, err := opts.ToolPrices()
	if err != nil {
		return err
	}
	entries := catalog.Default()
	registry := opts.RegistryAddress()
	token := common.HexToAddress(opts.Chain.Token)

	var (
		source    chain.Source
		sim       *chain.Simulated
		book      *catalog.Book
		localView *ledger.Ledger
	)
	switch opts.Chain.Mode {
	case config.ChainSimulated:
		if registry == (common.Address{}) {
			registry = simulatedRegistry
		}
		sim = chain.NewSimulated(registry, token)
		// the simulated chain starts empty, so does its journal
		if err := store.DeleteAllLedgerEvents(ctx); err != nil {
			return err
		}
		sim.Ledger().OnEvent(storage.Journal(store, log))
		ids, err := catalog.Bootstrap(sim, common.HexToAddress(opts.Chain.Operator), entries, prices)
		if err != nil {
			return err
		}
		source, localView = sim, sim.Ledger()
		book = catalog.NewBook(entries, catalog.WithLedger(sim.Ledger()), catalog.WithToolIDs(ids))
		log.Info().Str("registry", registry.Hex()).Int("tools", len(ids)).Msg("simulated chain ready")
	case config.ChainRPC:
		if opts.Chain.RPCURL != "" {
			rpc, err := chain.DialRPC(ctx, opts.Chain.RPCURL)
			if err != nil {
				return err
			}
			defer rpc.Close()
			source = rpc
		}
		book = catalog.NewBook(entries, catalog.WithToolIDs(opts.Tools.IDs), catalog.WithPrices(prices))
		if registry == (common.Address{}) {
			log.Warn().Msg("no registry configured, payment references are accepted unverified")
		}
	default:
		return fmt.Errorf("unknown chain mode %q", opts.Chain.Mode)
	}

	cache, closeCache, err := newCache(opts)
	if err != nil {
		return err
	}
	defer closeCache()

	v := verifier.New(source, registry,
		verifier.WithCache(cache),
		verifier.WithTimeout(opts.Verify.Timeout),
		verifier.WithLogger(log),
	)
	gate := x402.NewGate(x402.GateConfig{
		ChainID:       opts.Chain.ID,
		Network:       opts.Chain.Network,
		Registry:      registry,
		Token:         token,
		TokenSymbol:   opts.Chain.TokenSymbol,
		TokenDecimals: opts.Chain.TokenDecimals,
	}, v, log)

	coingecko := provider.NewCoinGecko(opts.Providers.CoinGeckoKey)
	providers := map[string]provider.Provider{
		"token_security": provider.NewGoPlus(opts.Providers.GoPlusKey),
		"token_price":    coingecko,
		"defi_yields":    provider.NewDefiLlama(),
		"bridge_quote":   provider.NewLiFi(),
		"dex_search":     provider.NewDexScreener(),
		"web_search":     provider.NewBrave(opts.Providers.BraveKey),
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Book:      book,
		Gate:      gate,
		Providers: providers,
		CoinGecko: coingecko,
		Store:     store,
		BaseURL:   opts.BaseURL,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	routerCfg := httpapi.Config{
		BaseURL:   opts.BaseURL,
		Logger:    log,
		Gate:      gate,
		Book:      book,
		Providers: providers,
		CoinGecko: coingecko,
		Ledger:    localView,
		Simulated: sim,
		Store:     store,
		MCP:       mcpServer.Handler(),
	}
	if opts.Facilitator.PayTo != "" {
		routerCfg.Facilitator = &httpapi.FacilitatorConfig{
			Options: x402.FacilitatorOptions{
				URL:          opts.Facilitator.URL,
				APIKeyID:     opts.Facilitator.APIKeyID,
				APIKeySecret: opts.Facilitator.APIKeySecret,
			},
			PayTo:   opts.Facilitator.PayTo,
			Network: opts.Facilitator.Network,
			Asset:   token.Hex(),
		}
	}
	router, err := httpapi.NewRouter(routerCfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", opts.Addr).
			Str("chain", opts.Chain.Mode).
			Str("payment_mode", gate.Mode().String()).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newCache picks the shared redis cache when configured, else a bounded
// in-memory one.
func newCache(opts *config.Options) (verifier.Cache, func(), error) {
	if opts.Verify.RedisURL == "" {
		return verifier.NewMemoryCache(opts.Verify.CacheTTL, opts.Verify.CacheEntries), func() {}, nil
	}
	c, err := verifier.NewRedisCacheFromURL(opts.Verify.RedisURL, opts.Verify.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}
