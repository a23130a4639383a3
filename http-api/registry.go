package httpapi

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/andrewreder/toolfi/go-api/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const headerCaller = "X-Caller-Address"

func (s *server) registerRegistryRoutes(r *gin.Engine) {
	reg := r.Group("/registry")
	reg.GET("/tools", s.listTools)
	reg.GET("/tools/:id", s.getTool)
	reg.GET("/creators/:address", s.getCreator)
	reg.GET("/usage/:caller/:id", s.getUsage)
	reg.GET("/events", s.listEvents)
}

// GET /registry/tools?offset=&limit=&active=
func (s *server) listTools(c *gin.Context) {
	offset, err := uintQuery(c, "offset", 0)
	if err != nil {
		abortError(c, http.StatusBadRequest, "bad_query", err.Error())
		return
	}
	limit, err := uintQuery(c, "limit", 20)
	if err != nil || limit > 100 {
		abortError(c, http.StatusBadRequest, "bad_query", "limit must be an integer in [0, 100]")
		return
	}
	activeOnly, err := strconv.ParseBool(c.DefaultQuery("active", "false"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "bad_query", "active must be a boolean")
		return
	}

	var tools []ledger.Tool
	if activeOnly {
		tools = s.cfg.Ledger.GetActiveTools(offset, limit)
	} else {
		tools = s.cfg.Ledger.GetTools(offset, limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  s.cfg.Ledger.ToolCount(),
		"offset": offset,
		"limit":  limit,
		"tools":  tools,
	})
}

// GET /registry/tools/:id
func (s *server) getTool(c *gin.Context) {
	id, ok := toolIDParam(c)
	if !ok {
		return
	}
	tool, err := s.cfg.Ledger.GetTool(id)
	if err != nil {
		status, code := ledgerStatus(err)
		abortError(c, status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, tool)
}

// GET /registry/creators/:address - balance and tools of a creator
func (s *server) getCreator(c *gin.Context) {
	creator, ok := addressParam(c, "address")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": creator.Hex(),
		"balance": s.cfg.Ledger.BalanceOf(creator).String(),
		"tools":   s.cfg.Ledger.ToolsByCreator(creator),
	})
}

// GET /registry/usage/:caller/:id
func (s *server) getUsage(c *gin.Context) {
	caller, ok := addressParam(c, "caller")
	if !ok {
		return
	}
	id, ok := toolIDParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"caller": caller.Hex(),
		"toolId": id,
		"calls":  s.cfg.Ledger.UserCallCount(caller, id),
	})
}

// GET /registry/events?offset=&limit= - the notification log, oldest first.
// Served from the journal when storage is configured.
func (s *server) listEvents(c *gin.Context) {
	offset, err := uintQuery(c, "offset", 0)
	if err != nil {
		abortError(c, http.StatusBadRequest, "bad_query", err.Error())
		return
	}
	limit, err := uintQuery(c, "limit", 50)
	if err != nil || limit > 500 {
		abortError(c, http.StatusBadRequest, "bad_query", "limit must be an integer in [0, 500]")
		return
	}

	if s.cfg.Store != nil {
		events, total, err := s.cfg.Store.GetLedgerEvents(c.Request.Context(), int(limit), int(min(offset, maxOffset)))
		if err != nil {
			_ = c.Error(err)
			abortError(c, http.StatusInternalServerError, "internal", "failed to read journal")
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": total, "events": events})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": s.cfg.Ledger.Events(offset, limit)})
}

func toolIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abortError(c, http.StatusBadRequest, "bad_tool_id", "tool id must be an unsigned integer")
		return 0, false
	}
	return id, true
}

func addressParam(c *gin.Context, name string) (common.Address, bool) {
	raw := c.Param(name)
	if !common.IsHexAddress(raw) {
		abortError(c, http.StatusBadRequest, "bad_address", fmt.Sprintf("%s must be a 0x address", name))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// maxOffset caps offsets handed to storage; any larger offset is past the end.
const maxOffset = 1<<31 - 1

func uintQuery(c *gin.Context, key string, def uint64) (uint64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned integer", key)
	}
	return v, nil
}

func intQuery(c *gin.Context, key string, def, min, max int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, fmt.Errorf("%s must be an integer in [%d, %d]", key, min, max)
	}
	return v, nil
}

func parseAmount(raw string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(raw, 10)
	return v, ok
}
