package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/service/worklog"
)

// CompletionService records contractor completions.
type CompletionService interface {
	RecordCompletions(ctx context.Context, req worklog.RecordRequest) (*models.CompletionResult, error)
}

// WorkHandler serves contractor work reporting.
type WorkHandler struct {
	svc    CompletionService
	logger *zap.Logger
}

func NewWorkHandler(svc CompletionService, logger *zap.Logger) *WorkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkHandler{svc: svc, logger: logger}
}

// RecordCompletions accepts a batch of completion entries. An Idempotency-Key
// header is used when the body carries no key.
func (h *WorkHandler) RecordCompletions(c *gin.Context) {
	var req worklog.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid completion payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	res, err := h.svc.RecordCompletions(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
