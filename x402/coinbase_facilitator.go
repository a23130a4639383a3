package x402

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	cdpjwt "github.com/coinbase/cdp-sdk/go/auth"
	x402http "github.com/coinbase/x402/go/http"
)

const (
	CoinbaseFacilitatorBaseURL = "https://api.cdp.coinbase.com"
	CoinbaseFacilitatorV2Route = "/platform/v2/x402"

	X402SDKVersion = "0.7.3"
	CDPSDKVersion  = "1.29.0"
)

// FacilitatorOptions locates the x402 facilitator used by the /x402 routes.
type FacilitatorOptions struct {
	URL          string
	APIKeyID     string
	APIKeySecret string
}

// CoinbaseAuthProvider signs facilitator requests with a CDP API key.
type CoinbaseAuthProvider struct {
	apiKeyID     string
	apiKeySecret string
	requestHost  string
	routePrefix  string
}

// NewCoinbaseAuthProvider builds a provider signing requests to facilitatorURL.
func NewCoinbaseAuthProvider(apiKeyID, apiKeySecret, facilitatorURL string) *CoinbaseAuthProvider {
	host, prefix := splitFacilitatorURL(facilitatorURL)
	return &CoinbaseAuthProvider{
		apiKeyID:     apiKeyID,
		apiKeySecret: apiKeySecret,
		requestHost:  host,
		routePrefix:  prefix,
	}
}

// GetAuthHeaders implements the x402 HTTP AuthProvider interface.
func (p *CoinbaseAuthProvider) GetAuthHeaders(ctx context.Context) (x402http.AuthHeaders, error) {
	correlation := correlationHeader()
	headers := x402http.AuthHeaders{
		Verify:    map[string]string{"Correlation-Context": correlation},
		Settle:    map[string]string{"Correlation-Context": correlation},
		Supported: map[string]string{"Correlation-Context": correlation},
	}
	if p.apiKeyID == "" || p.apiKeySecret == "" {
		return headers, nil
	}

	for _, ep := range []struct {
		target map[string]string
		method string
		path   string
	}{
		{headers.Verify, "POST", "/verify"},
		{headers.Settle, "POST", "/settle"},
		{headers.Supported, "GET", "/supported"},
	} {
		auth, err := p.authHeader(ep.method, p.routePrefix+ep.path)
		if err != nil {
			return x402http.AuthHeaders{}, err
		}
		ep.target["Authorization"] = auth
	}
	return headers, nil
}

func (p *CoinbaseAuthProvider) authHeader(method, path string) (string, error) {
	jwt, err := cdpjwt.GenerateJWT(cdpjwt.JwtOptions{
		KeyID:         p.apiKeyID,
		KeySecret:     p.apiKeySecret,
		RequestMethod: method,
		RequestHost:   p.requestHost,
		RequestPath:   path,
	})
	if err != nil {
		return "", fmt.Errorf("generate JWT for %s %s: %w", method, path, err)
	}
	return "Bearer " + jwt, nil
}

// FacilitatorConfig resolves the facilitator URL and auth. With CDP
// credentials and no explicit URL the Coinbase facilitator is used.
func FacilitatorConfig(opts FacilitatorOptions, defaultURL string) *x402http.FacilitatorConfig {
	keyID := strings.TrimSpace(opts.APIKeyID)
	secret := strings.TrimSpace(opts.APIKeySecret)
	facilitatorURL := strings.TrimSpace(opts.URL)
	if facilitatorURL == "" {
		if keyID != "" || secret != "" {
			facilitatorURL = CoinbaseFacilitatorBaseURL + CoinbaseFacilitatorV2Route
		} else {
			facilitatorURL = defaultURL
		}
	}

	cfg := &x402http.FacilitatorConfig{URL: facilitatorURL}
	if keyID != "" && secret != "" {
		cfg.AuthProvider = NewCoinbaseAuthProvider(keyID, secret, facilitatorURL)
	}
	return cfg
}

// NewFacilitatorClient returns an HTTP facilitator client for opts.
func NewFacilitatorClient(opts FacilitatorOptions, defaultURL string) *x402http.HTTPFacilitatorClient {
	return x402http.NewHTTPFacilitatorClient(FacilitatorConfig(opts, defaultURL))
}

func correlationHeader() string {
	data := map[string]string{
		"sdk_version":    CDPSDKVersion,
		"sdk_language":   "go",
		"source":         "x402",
		"source_version": X402SDKVersion,
	}
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+url.QueryEscape(data[key]))
	}
	return strings.Join(parts, ",")
}

// splitFacilitatorURL returns the host and path prefix JWTs are bound to.
func splitFacilitatorURL(raw string) (string, string) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		base, _ := url.Parse(CoinbaseFacilitatorBaseURL)
		return base.Host, CoinbaseFacilitatorV2Route
	}
	return parsed.Host, strings.TrimRight(parsed.Path, "/")
}
