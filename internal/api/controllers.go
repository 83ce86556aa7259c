package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mt5-gateway/internal/errs"
	"mt5-gateway/internal/registry"
	"mt5-gateway/internal/trade"
	"mt5-gateway/pkg/terminal"
)

type connectRequest struct {
	AccountID    string `json:"account_id" binding:"required"`
	Server       string `json:"server" binding:"required"`
	Login        int64  `json:"login" binding:"required"`
	Password     string `json:"password" binding:"required"`
	TerminalPath string `json:"terminal_path"`
}

type accountRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

type tradeRequest struct {
	AccountID  string  `json:"account_id" binding:"required"`
	Symbol     string  `json:"symbol" binding:"required"`
	Side       string  `json:"side" binding:"required"`
	Volume     float64 `json:"volume" binding:"required"`
	StopLoss   float64 `json:"stop_loss_distance"`
	TakeProfit float64 `json:"take_profit_distance"`
	Comment    string  `json:"comment"`
	Magic      int64   `json:"magic"`
	Filling    string  `json:"filling_mode"`
}

type closeRequest struct {
	AccountID string  `json:"account_id" binding:"required"`
	Ticket    int64   `json:"ticket" binding:"required"`
	Volume    float64 `json:"volume"`
	Symbol    string  `json:"symbol"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"version":       s.Meta.Version,
		"instance_id":   s.Meta.InstanceID,
		"mock_terminal": s.Meta.MockTerminal,
		"time":          time.Now().UTC(),
		"accounts":      s.Registry.Health(),
	})
}

func (s *Server) connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Validation("invalid connect request: "+err.Error()))
		return
	}

	h := s.Registry.Resolve(req.AccountID)
	if err := h.Session.Connect(c.Request.Context(), req.Server, req.Login, req.Password, req.TerminalPath); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"account_id": req.AccountID,
		"login":      h.Session.Login(),
		"connected":  true,
	})
}

func (s *Server) disconnect(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Validation("invalid disconnect request: "+err.Error()))
		return
	}

	s.Registry.Remove(c.Request.Context(), req.AccountID)
	ok(c, gin.H{"account_id": req.AccountID, "connected": false})
}

// lookupSession resolves the caller's session from the account_id query
// parameter. Read endpoints never create sessions implicitly.
func (s *Server) lookupSession(c *gin.Context) (*registry.Handle, string, bool) {
	accountID := c.Query("account_id")
	if accountID == "" {
		fail(c, errs.Validation("missing account_id"))
		return nil, "", false
	}
	h, found := s.Registry.Lookup(accountID)
	if !found {
		fail(c, errs.NotFound("no session for account "+accountID))
		return nil, "", false
	}
	return h, accountID, true
}

func (s *Server) symbols(c *gin.Context) {
	h, _, found := s.lookupSession(c)
	if !found {
		return
	}

	names, err := h.Session.Symbols(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"symbols": names, "count": len(names)})
}

func (s *Server) symbolInfo(c *gin.Context) {
	h, _, found := s.lookupSession(c)
	if !found {
		return
	}

	info, err := h.Session.EnsureSymbol(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, info)
}

func (s *Server) price(c *gin.Context) {
	h, _, found := s.lookupSession(c)
	if !found {
		return
	}

	quote, err := h.Session.Price(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, quote)
}

func (s *Server) positions(c *gin.Context) {
	h, _, found := s.lookupSession(c)
	if !found {
		return
	}

	positions, err := h.Session.Positions(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"positions": positions, "count": len(positions)})
}

func (s *Server) account(c *gin.Context) {
	h, _, found := s.lookupSession(c)
	if !found {
		return
	}

	acct, err := h.Session.AccountSnapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, acct)
}

func (s *Server) executions(c *gin.Context) {
	_, accountID, found := s.lookupSession(c)
	if !found {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := s.Journal.ListExecutions(c.Request.Context(), accountID, limit)
	if err != nil {
		fail(c, errs.Connection("journal query failed", err))
		return
	}
	ok(c, gin.H{"executions": records, "count": len(records)})
}

func (s *Server) placeTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Validation("invalid trade request: "+err.Error()))
		return
	}

	h, found := s.Registry.Lookup(req.AccountID)
	if !found {
		fail(c, errs.NotFound("no session for account "+req.AccountID))
		return
	}

	order := trade.Request{
		Symbol:             req.Symbol,
		Volume:             req.Volume,
		Side:               trade.Side(req.Side),
		StopLossDistance:   req.StopLoss,
		TakeProfitDistance: req.TakeProfit,
		Comment:            req.Comment,
		Magic:              req.Magic,
	}
	if req.Filling != "" {
		mode, valid := terminal.ParseFillingMode(req.Filling)
		if !valid {
			fail(c, errs.Validation("unknown filling mode "+req.Filling))
			return
		}
		order.Preferred = mode
		order.HasPreferred = true
	}

	result, err := s.Exec.PlaceOrder(c.Request.Context(), h.Session, order)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

func (s *Server) closeTrade(c *gin.Context) {
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Validation("invalid close request: "+err.Error()))
		return
	}

	h, found := s.Registry.Lookup(req.AccountID)
	if !found {
		fail(c, errs.NotFound("no session for account "+req.AccountID))
		return
	}

	result, err := s.Exec.ClosePosition(c.Request.Context(), h.Session, trade.CloseRequest{
		Ticket: req.Ticket,
		Volume: req.Volume,
		Symbol: req.Symbol,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}
