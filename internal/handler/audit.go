package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/debenture/internal/audit"
	"go.uber.org/zap"
)

// AuditHandler serves the hash-chained audit trail.
type AuditHandler struct {
	log    audit.Log
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(log audit.Log, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{log: log, logger: logger}
}

// Register registers the audit routes on the given router group.
func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/audit")
	{
		a.GET("", h.GetAudit)
		a.GET("/verify", h.Verify)
		a.GET("/entries/:idx", h.GetEntry)
	}
}

// GetAudit handles GET /audit?limit=N: chain tip, length and recent entries.
func (h *AuditHandler) GetAudit(c *gin.Context) {
	ctx := c.Request.Context()
	limit, _ := strconv.Atoi(c.Query("limit"))

	root, err := h.log.Root(ctx)
	if err != nil {
		h.auditError(c, err)
		return
	}
	n, err := h.log.Len(ctx)
	if err != nil {
		h.auditError(c, err)
		return
	}
	entries, err := h.log.Recent(ctx, limit)
	if err != nil {
		h.auditError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"root": root, "length": n, "entries": entries})
}

// GetEntry handles GET /audit/entries/:idx.
func (h *AuditHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	n, err := h.log.Len(c.Request.Context())
	if err != nil {
		h.auditError(c, err)
		return
	}
	if idx >= n {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	e, err := h.log.Get(c.Request.Context(), idx)
	if err != nil {
		h.auditError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// Verify handles GET /audit/verify.
func (h *AuditHandler) Verify(c *gin.Context) {
	if err := h.log.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("audit chain verification failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (h *AuditHandler) auditError(c *gin.Context, err error) {
	h.logger.Error("audit query", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
