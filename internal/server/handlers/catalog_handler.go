package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

// CatalogService looks jobs up in the external job catalog.
type CatalogService interface {
	SearchJobNumbers(ctx context.Context, part string) ([]string, error)
	JobDetails(ctx context.Context, jobNumber string) (*models.JobMetadata, error)
}

// CatalogHandler serves job catalog lookups.
type CatalogHandler struct {
	svc    CatalogService
	logger *zap.Logger
}

func NewCatalogHandler(svc CatalogService, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{svc: svc, logger: logger}
}

func (h *CatalogHandler) SearchNumbers(c *gin.Context) {
	numbers, err := h.svc.SearchJobNumbers(c.Request.Context(), c.Param("part"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, numbers)
}

func (h *CatalogHandler) Details(c *gin.Context) {
	meta, err := h.svc.JobDetails(c.Request.Context(), c.Param("jobNumber"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}
