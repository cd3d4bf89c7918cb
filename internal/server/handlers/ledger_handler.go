package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/service/ledger"
)

// LedgerService manages job ledgers.
type LedgerService interface {
	CreateOrExtend(ctx context.Context, req ledger.CreateOrExtendRequest) (*ledger.CreateOrExtendResult, error)
	ListJobNumbers(ctx context.Context) ([]string, error)
}

// ReconcileService reads ledgers back against the event log.
type ReconcileService interface {
	ComputeJobSummary(ctx context.Context, jobID string) (*models.JobSummary, error)
	ListPendingOperations(ctx context.Context, jobID string) (*models.PendingOperations, error)
	DetectDrift(ctx context.Context, jobID string) (*models.DriftReport, error)
	RepairDrift(ctx context.Context, jobID string) (*models.DriftReport, error)
}

// LedgerHandler serves job ledger endpoints.
type LedgerHandler struct {
	ledgers   LedgerService
	reconcile ReconcileService
	logger    *zap.Logger
}

// NewLedgerHandler constructs the HTTP handler adapter.
func NewLedgerHandler(ledgers LedgerService, reconcile ReconcileService, logger *zap.Logger) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerHandler{ledgers: ledgers, reconcile: reconcile, logger: logger}
}

// CreateOrExtend creates a job ledger or appends operations to an existing one.
// Both outcomes answer 201; the created flag tells them apart.
func (h *LedgerHandler) CreateOrExtend(c *gin.Context) {
	var req ledger.CreateOrExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid ledger payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := h.ledgers.CreateOrExtend(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

// ListJobNumbers returns every job id with a ledger.
func (h *LedgerHandler) ListJobNumbers(c *gin.Context) {
	ids, err := h.ledgers.ListJobNumbers(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

func (h *LedgerHandler) Pending(c *gin.Context) {
	out, err := h.reconcile.ListPendingOperations(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *LedgerHandler) Summary(c *gin.Context) {
	out, err := h.reconcile.ComputeJobSummary(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *LedgerHandler) Drift(c *gin.Context) {
	out, err := h.reconcile.DetectDrift(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Reconcile rewrites drifted pending counters from the event log.
func (h *LedgerHandler) Reconcile(c *gin.Context) {
	out, err := h.reconcile.RepairDrift(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
