package httpapi

import (
	"net/http"

	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Name        string `json:"name"`
	Endpoint    string `json:"endpoint"`
	Description string `json:"description" validate:"max=1024"`
	Price       string `json:"price" validate:"required,numeric"`
}

type amountRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

type priceRequest struct {
	Price string `json:"price" validate:"required,numeric"`
}

type mintRequest struct {
	Address string `json:"address" validate:"omitempty,eth_addr"`
	Amount  string `json:"amount" validate:"required,numeric"`
}

type txResponse struct {
	TxHash string        `json:"txHash"`
	Event  *ledger.Event `json:"event,omitempty"`
}

// registerSimulatedRoutes exposes the simulated chain's write side so a
// client can run approve, pay and retry end to end. The sender of every
// transaction is taken from X-Caller-Address.
func (s *server) registerSimulatedRoutes(r *gin.Engine) {
	reg := r.Group("/registry")
	reg.POST("/tools", s.registerTool)
	reg.POST("/tools/:id/pay", s.toolTx(func(c *gin.Context, caller common.Address, id uint64) (ledgerOp, bool) {
		return func(l *ledger.Ledger) (*ledger.Event, error) { return l.Pay(caller, id) }, true
	}))
	reg.POST("/tools/:id/tip", s.toolTx(func(c *gin.Context, caller common.Address, id uint64) (ledgerOp, bool) {
		var req amountRequest
		if !s.bind(c, &req) {
			return nil, false
		}
		amount, ok := parseAmount(req.Amount)
		if !ok {
			abortError(c, http.StatusBadRequest, "bad_amount", "amount must be an integer")
			return nil, false
		}
		return func(l *ledger.Ledger) (*ledger.Event, error) { return l.Tip(caller, id, amount) }, true
	}))
	reg.POST("/tools/:id/deactivate", s.toolTx(func(c *gin.Context, caller common.Address, id uint64) (ledgerOp, bool) {
		return func(l *ledger.Ledger) (*ledger.Event, error) { return l.DeactivateTool(caller, id) }, true
	}))
	reg.POST("/tools/:id/reactivate", s.toolTx(func(c *gin.Context, caller common.Address, id uint64) (ledgerOp, bool) {
		return func(l *ledger.Ledger) (*ledger.Event, error) { return l.ReactivateTool(caller, id) }, true
	}))
	reg.POST("/tools/:id/price", s.toolTx(func(c *gin.Context, caller common.Address, id uint64) (ledgerOp, bool) {
		var req priceRequest
		if !s.bind(c, &req) {
			return nil, false
		}
		price, ok := parseAmount(req.Price)
		if !ok {
			abortError(c, http.StatusBadRequest, "bad_price", "price must be an integer")
			return nil, false
		}
		return func(l *ledger.Ledger) (*ledger.Event, error) { return l.UpdatePrice(caller, id, price) }, true
	}))
	reg.POST("/withdraw", func(c *gin.Context) {
		caller, ok := callerOf(c)
		if !ok {
			return
		}
		s.submit(c, caller, func(l *ledger.Ledger) (*ledger.Event, error) { return l.Withdraw(caller) })
	})

	tok := r.Group("/token")
	tok.POST("/approve", s.approve)
	tok.POST("/mint", s.mint)
	tok.GET("/balance/:address", s.tokenBalance)
}

type ledgerOp func(*ledger.Ledger) (*ledger.Event, error)

// toolTx adapts a per-tool operation builder into a handler.
func (s *server) toolTx(build func(*gin.Context, common.Address, uint64) (ledgerOp, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOf(c)
		if !ok {
			return
		}
		id, ok := toolIDParam(c)
		if !ok {
			return
		}
		op, ok := build(c, caller, id)
		if !ok {
			return
		}
		s.submit(c, caller, op)
	}
}

// POST /registry/tools
func (s *server) registerTool(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req registerRequest
	if !s.bind(c, &req) {
		return
	}
	price, ok := parseAmount(req.Price)
	if !ok {
		abortError(c, http.StatusBadRequest, "bad_price", "price must be an integer")
		return
	}
	s.submit(c, caller, func(l *ledger.Ledger) (*ledger.Event, error) {
		return l.Register(caller, req.Name, req.Endpoint, req.Description, price)
	})
}

// submit mines op and answers with its hash. A reverted transaction is
// still mined; its hash is returned in X-Tx-Hash next to the error.
func (s *server) submit(c *gin.Context, caller common.Address, op ledgerOp) {
	hash, ev, err := s.cfg.Simulated.Submit(caller, op)
	if err != nil {
		if hash != (common.Hash{}) {
			c.Header("X-Tx-Hash", hash.Hex())
		}
		status, code := ledgerStatus(err)
		abortError(c, status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, txResponse{TxHash: hash.Hex(), Event: ev})
}

// POST /token/approve - allow the registry to pull amount from the caller
func (s *server) approve(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req amountRequest
	if !s.bind(c, &req) {
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || amount.Sign() < 0 {
		abortError(c, http.StatusBadRequest, "bad_amount", "amount must be a non-negative integer")
		return
	}
	hash := s.cfg.Simulated.Approve(caller, amount)
	c.JSON(http.StatusOK, txResponse{TxHash: hash.Hex()})
}

// POST /token/mint - test funds; mints to address or to the caller
func (s *server) mint(c *gin.Context) {
	var req mintRequest
	if !s.bind(c, &req) {
		return
	}
	var to common.Address
	if req.Address != "" {
		to = common.HexToAddress(req.Address)
	} else {
		caller, ok := callerOf(c)
		if !ok {
			return
		}
		to = caller
	}
	amount, ok := parseAmount(req.Amount)
	if !ok || !s.cfg.Simulated.Token().Mint(to, amount) {
		abortError(c, http.StatusBadRequest, "bad_amount", "amount must be a positive integer")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": to.Hex(),
		"balance": s.cfg.Simulated.Token().BalanceOf(to).String(),
	})
}

// GET /token/balance/:address
func (s *server) tokenBalance(c *gin.Context) {
	owner, ok := addressParam(c, "address")
	if !ok {
		return
	}
	tok := s.cfg.Simulated.Token()
	c.JSON(http.StatusOK, gin.H{
		"address":   owner.Hex(),
		"token":     s.cfg.Simulated.TokenAddress().Hex(),
		"balance":   tok.BalanceOf(owner).String(),
		"allowance": tok.Allowance(owner, s.cfg.Simulated.RegistryAddress()).String(),
	})
}

func callerOf(c *gin.Context) (common.Address, bool) {
	raw := c.GetHeader(headerCaller)
	if !common.IsHexAddress(raw) {
		abortError(c, http.StatusBadRequest, "missing_caller", headerCaller+" must carry the sender address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// bind decodes and validates a JSON body.
func (s *server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortError(c, http.StatusBadRequest, "bad_body", err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		abortError(c, http.StatusBadRequest, "bad_body", err.Error())
		return false
	}
	return true
}
