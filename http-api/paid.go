package httpapi

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/andrewreder/toolfi/go-api/catalog"
	"github.com/andrewreder/toolfi/go-api/models"
	"github.com/andrewreder/toolfi/go-api/provider"
	"github.com/andrewreder/toolfi/go-api/storage"
	"github.com/andrewreder/toolfi/go-api/x402"
	"github.com/gin-gonic/gin"
)

type toolInfo struct {
	ID    uint64   `json:"id"`
	Name  string   `json:"name"`
	Price *big.Int `json:"price"`
}

type paidResponse struct {
	Tool    toolInfo          `json:"tool"`
	Payment *x402.PaymentInfo `json:"payment"`
	Data    any               `json:"data"`
}

func (s *server) registerPaidRoutes(r *gin.Engine) {
	for _, entry := range s.cfg.Book.Entries() {
		p, ok := s.cfg.Providers[entry.Name]
		if !ok {
			s.log.Warn().Str("tool", entry.Name).Msg("no provider configured, endpoint disabled")
			continue
		}
		r.GET(entry.Path, s.paidHandler(entry, p))
	}
}

// paidHandler serves one catalog entry. Queries are validated before the
// payment reference is looked at so nobody pays for an unanswerable request.
func (s *server) paidHandler(entry catalog.Entry, p provider.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := queryOf(c)
		if err := p.Validate(q); err != nil {
			status, code := providerStatus(err)
			abortError(c, status, code, err.Error())
			return
		}

		ref, err := s.cfg.Book.Resolve(entry.Name)
		if err != nil {
			status, code := providerStatus(err)
			abortError(c, status, code, err.Error())
			return
		}

		decision := s.cfg.Gate.Authorize(c.Request.Context(), c.GetHeader(x402.HeaderPaymentTx), ref)
		switch decision.Kind {
		case x402.PaymentRequired:
			c.AbortWithStatusJSON(http.StatusPaymentRequired, decision.Required)
			return
		case x402.Rejected:
			if decision.Rejection.Retryable {
				c.Header("Retry-After", "5")
			}
			c.AbortWithStatusJSON(http.StatusPaymentRequired, errorEnvelope{
				RequestID: requestIDOf(c),
				Error: errorBody{
					Code:      decision.Rejection.Code,
					Message:   decision.Rejection.Message,
					Retryable: decision.Rejection.Retryable,
				},
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.ProviderTimeout)
		defer cancel()
		start := time.Now()
		data, err := p.Fetch(ctx, q)
		s.recordCall(c, "http", ref, decision.Payment, q, time.Since(start), err)
		if err != nil {
			status, code := providerStatus(err)
			abortError(c, status, code, err.Error())
			return
		}

		c.JSON(http.StatusOK, paidResponse{
			Tool:    toolInfo{ID: ref.ID, Name: ref.Name, Price: ref.Price},
			Payment: decision.Payment,
			Data:    data,
		})
	}
}

func (s *server) recordCall(c *gin.Context, surface string, ref x402.ToolRef, payment *x402.PaymentInfo, q provider.Query, took time.Duration, fetchErr error) {
	queryJSON, _ := json.Marshal(q)
	call := &models.ToolCall{
		RequestID:  requestIDOf(c),
		ToolID:     ref.ID,
		ToolName:   ref.Name,
		Surface:    surface,
		Caller:     payment.Caller,
		TxRef:      payment.TxRef,
		Mode:       payment.Mode,
		QueryJSON:  string(queryJSON),
		DurationMs: took.Milliseconds(),
		Success:    fetchErr == nil,
	}
	if fetchErr != nil {
		call.ErrorMessage = fetchErr.Error()
	}
	storage.RecordCall(c.Request.Context(), s.cfg.Store, s.log, call)
}

func queryOf(c *gin.Context) provider.Query {
	q := provider.Query{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			q[key] = values[0]
		}
	}
	return q
}

// GET /calls?caller=&tool_id=&limit=&offset= - served calls, newest first
func (s *server) listCalls(c *gin.Context) {
	limit, err := intQuery(c, "limit", 50, 1, 500)
	if err != nil {
		abortError(c, http.StatusBadRequest, "bad_query", err.Error())
		return
	}
	offset, err := intQuery(c, "offset", 0, 0, maxOffset)
	if err != nil {
		abortError(c, http.StatusBadRequest, "bad_query", err.Error())
		return
	}
	var toolID uint64
	if raw := c.Query("tool_id"); raw != "" {
		if toolID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			abortError(c, http.StatusBadRequest, "bad_query", "tool_id must be an unsigned integer")
			return
		}
	}

	calls, total, err := s.cfg.Store.GetToolCalls(c.Request.Context(), storage.CallFilter{
		Caller: c.Query("caller"),
		ToolID: toolID,
	}, limit, offset)
	if err != nil {
		_ = c.Error(err)
		abortError(c, http.StatusInternalServerError, "internal", "failed to list calls")
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "calls": calls})
}
