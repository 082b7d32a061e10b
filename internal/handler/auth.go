package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/identity"
	"go.uber.org/zap"
)

// AuthHandler exchanges caller credentials for session tokens.
type AuthHandler struct {
	principals identity.Principals
	tokens     *identity.CallerTokenIssuer
	logger     *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(principals identity.Principals, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{principals: principals, tokens: tokens, logger: logger}
}

// Register registers the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.IssueToken)
}

type tokenRequest struct {
	Address string `json:"address" binding:"required"`
	Secret  string `json:"secret"  binding:"required"`
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address and secret are required"})
		return
	}
	address := bond.Address(strings.TrimSpace(req.Address))

	if err := h.principals.Authenticate(address, req.Secret); err != nil {
		h.logger.Info("token exchange rejected", zap.String("address", address.String()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, expires, err := h.tokens.Issue(address)
	if err != nil {
		h.logger.Error("issue caller token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expires,
	})
}
