package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

// respondError maps a service error onto its HTTP status and a {"error": msg} body.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		body := gin.H{"error": verr.Message}
		if len(verr.Rejected) > 0 {
			body["rejected"] = verr.Rejected
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrDependency):
		logger.Warn("dependency unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
