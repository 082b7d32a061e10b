package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/debenture/internal/amortization"
	"go.uber.org/zap"
)

// engineStatus maps an engine error to its HTTP status.
func engineStatus(err error) int {
	switch {
	case errors.Is(err, amortization.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, amortization.ErrBondNotFound):
		return http.StatusNotFound
	case errors.Is(err, amortization.ErrInvalidInvestor),
		errors.Is(err, amortization.ErrInvalidTerms):
		return http.StatusUnprocessableEntity
	case errors.Is(err, amortization.ErrAlreadyFullyAmortized),
		errors.Is(err, amortization.ErrNoPeriodElapsed),
		errors.Is(err, amortization.ErrInvalidRedemptionTime),
		errors.Is(err, amortization.ErrNotInvestorOfRecord):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError renders err with its reason code. Internal errors are
// logged and their detail withheld.
func writeEngineError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := engineStatus(err)
	reason := amortization.Reason(err)
	if status == http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(status, gin.H{"error": op + " failed", "reason": reason})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "reason": reason})
}
