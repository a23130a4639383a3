package httpapi

import (
	"net/http"
	"time"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/chain"
	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/andrewreder/toolfi/go-api/provider"
	"github.com/andrewreder/toolfi/go-api/storage"
	"github.com/andrewreder/toolfi/go-api/x402"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const defaultProviderTimeout = 20 * time.Second

// Config wires the router to the rest of the server. Optional parts left
// nil switch their routes off.
type Config struct {
	BaseURL string
	Logger  zerolog.Logger

	Gate      *x402.Gate
	Book      *catalog.Book
	Providers map[string]provider.Provider
	CoinGecko *provider.CoinGecko

	// Ledger enables the /registry read routes.
	Ledger *ledger.Ledger
	// Simulated enables the write routes that mine simulated transactions.
	Simulated *chain.Simulated
	Store     storage.Storage
	// MCP is mounted at /mcp when set.
	MCP http.Handler

	Facilitator *FacilitatorConfig

	ProviderTimeout time.Duration
}

type server struct {
	cfg      Config
	log      zerolog.Logger
	validate *validator.Validate
}

// NewRouter builds the Gin router with all HTTP routes registered.
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	s := &server{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "http").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := gin.New()
	r.Use(requestID(), requestLogger(s.log), recovery(s.log))
	r.NoRoute(func(c *gin.Context) {
		abortError(c, http.StatusNotFound, "route_not_found", "no route for "+c.Request.Method+" "+c.Request.URL.Path)
	})

	var mirrored []FacilitatorRoute
	if cfg.Facilitator != nil {
		mirrored = s.facilitatorRoutes()
		if err := ConfigurePayments(r, cfg.BaseURL, *cfg.Facilitator, mirrored, s.log); err != nil {
			return nil, err
		}
	}

	s.registerDiscoveryRoutes(r)
	s.registerPaidRoutes(r)
	s.registerFacilitatorRoutes(r, mirrored)
	if cfg.Ledger != nil {
		s.registerRegistryRoutes(r)
	}
	if cfg.Simulated != nil {
		s.registerSimulatedRoutes(r)
	}
	if cfg.Store != nil {
		r.GET("/calls", s.listCalls)
	}
	if cfg.MCP != nil {
		r.Any("/mcp", gin.WrapH(cfg.MCP))
		r.Any("/mcp/*path", gin.WrapH(cfg.MCP))
	}

	return r, nil
}

type catalogItem struct {
	catalog.Listing
	URL            string `json:"url"`
	PriceFormatted string `json:"priceFormatted"`
}

func (s *server) registerDiscoveryRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"payment_mode": s.cfg.Gate.Mode().String(),
		})
	})

	// GET /api/catalog - paid endpoints with their registry id and price
	r.GET("/api/catalog", func(c *gin.Context) {
		listings := s.cfg.Book.Listings()
		items := make([]catalogItem, 0, len(listings))
		for _, l := range listings {
			items = append(items, catalogItem{
				Listing:        l,
				URL:            s.cfg.BaseURL + l.Path,
				PriceFormatted: s.cfg.Gate.FormatPrice(l.Price),
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"protocol": x402.ProtocolTag,
			"header":   x402.HeaderPaymentTx,
			"tools":    items,
		})
	})

	r.GET("/api/chains", func(c *gin.Context) {
		c.JSON(http.StatusOK, provider.SupportedChains())
	})

	if s.cfg.CoinGecko != nil {
		r.GET("/api/trending", func(c *gin.Context) {
			data, err := s.cfg.CoinGecko.Trending(c.Request.Context())
			if err != nil {
				status, code := providerStatus(err)
				abortError(c, status, code, err.Error())
				return
			}
			c.JSON(http.StatusOK, data)
		})
	}
}
