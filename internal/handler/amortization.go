package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/debenture/internal/amortization"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/identity"
	"go.uber.org/zap"
)

// OpenCallerHeader names the caller when no token issuer is configured.
const OpenCallerHeader = "X-Debenture-Caller"

// AmortizationHandler handles HTTP requests for payouts and ledger queries.
type AmortizationHandler struct {
	engine *amortization.Engine
	tokens *identity.CallerTokenIssuer // nil = open mode, caller from OpenCallerHeader
	logger *zap.Logger
}

// NewAmortizationHandler creates a new AmortizationHandler.
func NewAmortizationHandler(engine *amortization.Engine, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *AmortizationHandler {
	return &AmortizationHandler{engine: engine, tokens: tokens, logger: logger}
}

// requireCaller returns the RequireCaller middleware when auth is configured,
// or a no-op middleware for development/open mode.
func (h *AmortizationHandler) requireCaller() gin.HandlerFunc {
	if h.tokens == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return identity.RequireCaller(h.tokens)
}

// RequireCaller exposes the handler's auth middleware to sibling handlers.
func (h *AmortizationHandler) RequireCaller() gin.HandlerFunc {
	return h.requireCaller()
}

func (h *AmortizationHandler) caller(c *gin.Context) bond.Address {
	if h.tokens == nil {
		return bond.Address(strings.TrimSpace(c.GetHeader(OpenCallerHeader)))
	}
	return identity.CallerFromCtx(c)
}

// Register registers all amortization routes on the given router group.
func (h *AmortizationHandler) Register(rg *gin.RouterGroup) {
	bonds := rg.Group("/bonds")
	{
		bonds.POST("/:id/settle", h.requireCaller(), h.Settle)
		bonds.POST("/:id/redeem", h.requireCaller(), h.Redeem)
		bonds.GET("/:id/schedule", h.GetSchedule)
	}

	rg.GET("/ledger/:investor/bonds/:id", h.GetEntry)
	rg.GET("/ledger/:investor/receipts", h.ListReceipts)
	rg.GET("/balances/:investor", h.GetBalance)
}

func parseBondID(c *gin.Context) (bond.ID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bond ID"})
		return 0, false
	}
	return bond.ID(id), true
}

func parseInvestor(c *gin.Context) (bond.Address, bool) {
	inv := bond.Address(strings.TrimSpace(c.Param("investor")))
	if inv.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid investor address"})
		return "", false
	}
	return inv, true
}

// Settle handles POST /bonds/:id/settle: pays every elapsed period.
func (h *AmortizationHandler) Settle(c *gin.Context) {
	id, ok := parseBondID(c)
	if !ok {
		return
	}
	s, err := h.engine.Settle(c.Request.Context(), id, h.caller(c))
	if err != nil {
		writeEngineError(c, h.logger, "settle", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Redeem handles POST /bonds/:id/redeem: early redemption of the remaining
// principal.
func (h *AmortizationHandler) Redeem(c *gin.Context) {
	id, ok := parseBondID(c)
	if !ok {
		return
	}
	s, err := h.engine.RedeemEarly(c.Request.Context(), id, h.caller(c))
	if err != nil {
		writeEngineError(c, h.logger, "redeem", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// scheduleResponse renders durations in whole seconds.
type scheduleResponse struct {
	BondID                bond.ID      `json:"bond_id"`
	Investor              bond.Address `json:"investor"`
	PaymentsMade          int64        `json:"payments_made"`
	Frequency             int64        `json:"frequency"`
	LastSettlement        time.Time    `json:"last_settlement"`
	PeriodDurationSeconds int64        `json:"period_duration_seconds"`
	Completed             bool         `json:"completed"`
	NextDue               *time.Time   `json:"next_due,omitempty"`
	TimeLeftSeconds       int64        `json:"time_left_seconds"`
}

// GetSchedule handles GET /bonds/:id/schedule.
func (h *AmortizationHandler) GetSchedule(c *gin.Context) {
	id, ok := parseBondID(c)
	if !ok {
		return
	}
	s, err := h.engine.Schedule(c.Request.Context(), id)
	if err != nil {
		writeEngineError(c, h.logger, "schedule", err)
		return
	}
	c.JSON(http.StatusOK, scheduleResponse{
		BondID:                s.BondID,
		Investor:              s.Investor,
		PaymentsMade:          s.PaymentsMade,
		Frequency:             s.Frequency,
		LastSettlement:        s.LastSettlement,
		PeriodDurationSeconds: int64(s.PeriodDuration / time.Second),
		Completed:             s.Completed,
		NextDue:               s.NextDue,
		TimeLeftSeconds:       int64(s.TimeLeft / time.Second),
	})
}

// GetEntry handles GET /ledger/:investor/bonds/:id. A missing entry reads as
// zero payments and a null last settlement.
func (h *AmortizationHandler) GetEntry(c *gin.Context) {
	investor, ok := parseInvestor(c)
	if !ok {
		return
	}
	id, ok := parseBondID(c)
	if !ok {
		return
	}
	entry, found, err := h.engine.Entry(c.Request.Context(), investor, id)
	if err != nil {
		writeEngineError(c, h.logger, "entry", err)
		return
	}
	resp := gin.H{
		"investor":        investor,
		"bond_id":         id,
		"exists":          found,
		"payments_made":   entry.PaymentsMade,
		"last_settlement": nil,
	}
	if found {
		resp["last_settlement"] = entry.LastSettlement
	}
	c.JSON(http.StatusOK, resp)
}

// GetBalance handles GET /balances/:investor.
func (h *AmortizationHandler) GetBalance(c *gin.Context) {
	investor, ok := parseInvestor(c)
	if !ok {
		return
	}
	balance, err := h.engine.Balance(c.Request.Context(), investor)
	if err != nil {
		writeEngineError(c, h.logger, "balance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"investor": investor, "balance": balance})
}

// ListReceipts handles GET /ledger/:investor/receipts?limit=N.
func (h *AmortizationHandler) ListReceipts(c *gin.Context) {
	investor, ok := parseInvestor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	receipts, err := h.engine.Receipts(c.Request.Context(), investor, limit)
	if err != nil {
		writeEngineError(c, h.logger, "receipts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts, "count": len(receipts)})
}
