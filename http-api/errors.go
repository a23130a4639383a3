package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/andrewreder/toolfi/go-api/provider"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type errorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     errorBody `json:"error"`
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorEnvelope{
		RequestID: requestIDOf(c),
		Error:     errorBody{Code: code, Message: message},
	})
}

// ledgerStatus maps ledger errors onto HTTP statuses and stable codes.
func ledgerStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrEmptyName):
		return http.StatusBadRequest, "empty_name"
	case errors.Is(err, ledger.ErrEmptyEndpoint):
		return http.StatusBadRequest, "empty_endpoint"
	case errors.Is(err, ledger.ErrZeroPrice):
		return http.StatusBadRequest, "zero_price"
	case errors.Is(err, ledger.ErrZeroAmount):
		return http.StatusBadRequest, "zero_amount"
	case errors.Is(err, ledger.ErrNotToolCreator):
		return http.StatusForbidden, "not_tool_creator"
	case errors.Is(err, ledger.ErrToolNotFound):
		return http.StatusNotFound, "tool_not_found"
	case errors.Is(err, ledger.ErrToolInactive):
		return http.StatusConflict, "tool_inactive"
	case errors.Is(err, ledger.ErrNothingToWithdraw):
		return http.StatusConflict, "nothing_to_withdraw"
	case errors.Is(err, ledger.ErrTransferFailed):
		return http.StatusPaymentRequired, "transfer_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// providerStatus maps content provider and catalog errors.
func providerStatus(err error) (int, string) {
	var apiErr *provider.APIError
	switch {
	case errors.Is(err, provider.ErrBadQuery):
		return http.StatusBadRequest, "bad_query"
	case errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, provider.ErrUnavailable), errors.Is(err, catalog.ErrUnlisted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, ledger.ErrToolInactive):
		return http.StatusConflict, "tool_inactive"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream_timeout"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
