package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/oracle"
	"github.com/jmerrifield20/debenture/internal/scheduler"
	"go.uber.org/zap"
)

// botReporter is the part of the settlement bot exposed over HTTP.
type botReporter interface {
	Status() scheduler.Status
}

// StatusHandler serves the index and settlement bot status endpoints.
type StatusHandler struct {
	index  bond.IndexOracle
	bot    botReporter // nil = bot disabled
	logger *zap.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(index bond.IndexOracle, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{index: index, logger: logger}
}

// SetBot configures the settlement bot reported at /bot/status.
func (h *StatusHandler) SetBot(bot botReporter) {
	h.bot = bot
}

// Register registers the status routes on the given router group.
func (h *StatusHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/index", h.GetIndex)
	rg.GET("/bot/status", h.GetBotStatus)
}

// GetIndex handles GET /index: the current accumulated inflation index.
func (h *StatusHandler) GetIndex(c *gin.Context) {
	ctx := c.Request.Context()

	if r, ok := h.index.(oracle.Reporter); ok {
		info, err := r.Info(ctx)
		if err != nil {
			h.logger.Warn("index info", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "index source unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scale": bond.IndexScale, "index": info})
		return
	}

	acc, err := h.index.Accumulated(ctx)
	if err != nil {
		h.logger.Warn("index accumulated", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "index source unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scale": bond.IndexScale, "index": gin.H{"accumulated": acc}})
}

// GetBotStatus handles GET /bot/status.
func (h *StatusHandler) GetBotStatus(c *gin.Context) {
	if h.bot == nil {
		c.JSON(http.StatusOK, scheduler.Status{CurrentCycle: "disabled", Errors: []string{}})
		return
	}
	c.JSON(http.StatusOK, h.bot.Status())
}
