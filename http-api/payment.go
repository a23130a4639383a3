package httpapi

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/provider"
	"github.com/andrewreder/toolfi/go-api/x402"
	x402sdk "github.com/coinbase/x402/go"
	x402http "github.com/coinbase/x402/go/http"
	ginmw "github.com/coinbase/x402/go/http/gin"
	evmexact "github.com/coinbase/x402/go/mechanisms/evm/exact/server"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	facilitatorPrefix     = "/x402"
	defaultFacilitatorURL = "http://localhost:8003/v2/x402"
)

// FacilitatorConfig enables the /x402 mirror of the paid routes, where
// payment is a signed EIP-3009 authorization settled by a facilitator
// instead of a payForCall transaction.
type FacilitatorConfig struct {
	Options x402.FacilitatorOptions
	PayTo   string
	Network string
	// Asset is the ERC-20 the authorization is signed over.
	Asset        string
	AssetName    string
	AssetVersion string
}

// FacilitatorRoute is one mirrored catalog entry with its static price.
type FacilitatorRoute struct {
	Entry catalog.Entry
	Price *big.Int
}

func (s *server) facilitatorRoutes() []FacilitatorRoute {
	var routes []FacilitatorRoute
	for _, l := range s.cfg.Book.Listings() {
		if _, ok := s.cfg.Providers[l.Name]; !ok || !l.Active {
			continue
		}
		routes = append(routes, FacilitatorRoute{Entry: l.Entry, Price: l.Price})
	}
	return routes
}

// ConfigurePayments installs the x402 middleware for the mirrored routes.
// It must run before the mirrored handlers are registered.
func ConfigurePayments(r *gin.Engine, baseURL string, cfg FacilitatorConfig, routes []FacilitatorRoute, log zerolog.Logger) error {
	if cfg.PayTo == "" {
		return fmt.Errorf("facilitator pay-to address is required")
	}
	network := x402sdk.Network(cfg.Network)
	if network == "" {
		network = x402sdk.Network("eip155:84532")
	}
	assetName, assetVersion := cfg.AssetName, cfg.AssetVersion
	if assetName == "" {
		assetName = "USDC"
	}
	if assetVersion == "" {
		assetVersion = "2"
	}

	unpaidJSON := func(path string) x402http.UnpaidResponseBodyFunc {
		return func(ctx context.Context, reqCtx x402http.HTTPRequestContext) (*x402http.UnpaidResponse, error) {
			return &x402http.UnpaidResponse{
				ContentType: "application/json",
				Body: map[string]string{
					"error": "Payment required to access " + path,
					"hint":  "See PAYMENT-REQUIRED header for details",
				},
			}, nil
		}
	}

	paymentRoutes := x402http.RoutesConfig{}
	for _, route := range routes {
		path := facilitatorPrefix + route.Entry.Path
		for k, v := range (x402http.RoutesConfig{
			"GET " + path: {
				Accepts: []x402http.PaymentOption{
					{
						Scheme: "exact",
						PayTo:  cfg.PayTo,
						Price: map[string]interface{}{
							"amount": route.Price.String(),
							"asset":  cfg.Asset,
							"extra": map[string]interface{}{
								"name":    assetName,
								"version": assetVersion,
							},
						},
						Network:           network,
						MaxTimeoutSeconds: 300,
					},
				},
				Resource:           baseURL + path,
				Description:        route.Entry.Description,
				MimeType:           "application/json",
				UnpaidResponseBody: unpaidJSON(path),
			},
		}) {
			paymentRoutes[k] = v
		}
	}
	if len(paymentRoutes) == 0 {
		return nil
	}

	plog := log.With().Str("component", "x402").Logger()
	r.Use(ginmw.X402Payment(ginmw.Config{
		Routes:      paymentRoutes,
		Facilitator: x402.NewFacilitatorClient(cfg.Options, defaultFacilitatorURL),
		Schemes: []ginmw.SchemeConfig{
			{Network: network, Server: evmexact.NewExactEvmScheme()},
		},
		ErrorHandler: func(c *gin.Context, err error) {
			ev := plog.Warn().Err(err).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Bool("payment_signature", c.GetHeader("PAYMENT-SIGNATURE") != "").
				Bool("x_payment", c.GetHeader("X-PAYMENT") != "")
			if c.GetHeader("PAYMENT-SIGNATURE") == "" && c.GetHeader("X-PAYMENT") != "" {
				ev = ev.Str("hint", "x402 v2 expects PAYMENT-SIGNATURE; X-PAYMENT is treated as v1")
			}
			ev.Msg("x402 payment error")
		},
		SettlementHandler: func(c *gin.Context, settlement *x402sdk.SettleResponse) {
			plog.Info().
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("network", string(settlement.Network)).
				Bool("success", settlement.Success).
				Msg("x402 payment settled")
		},
	}))
	return nil
}

func (s *server) registerFacilitatorRoutes(r *gin.Engine, routes []FacilitatorRoute) {
	for _, route := range routes {
		r.GET(facilitatorPrefix+route.Entry.Path, s.facilitatorHandler(route, s.cfg.Providers[route.Entry.Name]))
	}
}

// facilitatorHandler runs after the x402 middleware accepted the payment.
func (s *server) facilitatorHandler(route FacilitatorRoute, p provider.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := queryOf(c)
		if err := p.Validate(q); err != nil {
			status, code := providerStatus(err)
			abortError(c, status, code, err.Error())
			return
		}

		ref := x402.ToolRef{Name: route.Entry.Name, Price: route.Price}
		if listing, err := s.cfg.Book.Resolve(route.Entry.Name); err == nil {
			ref = listing
		}
		payment := &x402.PaymentInfo{Mode: "facilitator"}

		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.ProviderTimeout)
		defer cancel()
		start := time.Now()
		data, err := p.Fetch(ctx, q)
		s.recordCall(c, "x402", ref, payment, q, time.Since(start), err)
		if err != nil {
			status, code := providerStatus(err)
			abortError(c, status, code, err.Error())
			return
		}
		c.JSON(http.StatusOK, paidResponse{
			Tool:    toolInfo{ID: ref.ID, Name: ref.Name, Price: route.Price},
			Payment: payment,
			Data:    data,
		})
	}
}
