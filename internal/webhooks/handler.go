package webhooks

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the webhook delivery log.
type Handler struct {
	log    DeliveryLog
	logger *zap.Logger
}

// NewHandler creates a new webhook Handler.
func NewHandler(log DeliveryLog, logger *zap.Logger) *Handler {
	return &Handler{log: log, logger: logger}
}

// Register registers the webhook routes on the given router group. auth
// guards every route.
func (h *Handler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	wh := rg.Group("/webhooks", auth)
	{
		wh.GET("/deliveries", h.ListDeliveries)
	}
}

// ListDeliveries handles GET /webhooks/deliveries?limit=N.
func (h *Handler) ListDeliveries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	deliveries, err := h.log.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("webhook: list deliveries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list deliveries"})
		return
	}
	if deliveries == nil {
		deliveries = []*WebhookDelivery{}
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries, "count": len(deliveries)})
}
