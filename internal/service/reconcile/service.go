package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/lock"
	"github.com/mamadbah2/piecework/internal/repository"
)

// Service exposes the reconciliation engine over stored ledgers and work logs.
type Service struct {
	ledgers repository.LedgerStore
	logs    repository.WorkLogStore
	catalog repository.CatalogReader
	locker  lock.Locker
	logger  *zap.Logger
}

// NewService wires a reconciliation service. catalog may be nil, in which
// case every name falls back.
func NewService(ledgers repository.LedgerStore, logs repository.WorkLogStore, catalog repository.CatalogReader, locker lock.Locker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ledgers: ledgers, logs: logs, catalog: catalog, locker: locker, logger: logger}
}

// ComputeJobSummary reconstructs the per-contractor/per-operation completion
// matrix. A job without a ledger yields an empty summary.
func (s *Service) ComputeJobSummary(ctx context.Context, jobID string) (*models.JobSummary, error) {
	jobID = strings.TrimSpace(jobID)

	ledger, err := s.ledgers.FindLedger(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if ledger == nil {
		summary := Summarize(nil, nil, nil, nil)
		summary.JobID = jobID
		return &summary, nil
	}

	logs, err := s.logs.FindByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load work logs: %w", err)
	}

	contractorIDs := make([]string, 0, len(logs))
	for _, log := range logs {
		contractorIDs = append(contractorIDs, log.ContractorID)
	}

	summary := Summarize(ledger, logs, s.operationNames(ctx, ledger.OperationIDs()), s.contractorNames(ctx, contractorIDs))
	return &summary, nil
}

// ListPendingOperations lists operations with outstanding work from the
// ledger's stored counters.
func (s *Service) ListPendingOperations(ctx context.Context, jobID string) (*models.PendingOperations, error) {
	ledger, err := s.requireLedger(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var pendingIDs []string
	for _, op := range ledger.Operations {
		if op.PendingQuantity > 0 {
			pendingIDs = append(pendingIDs, op.OperationID)
		}
	}

	out := Pending(ledger, s.operationNames(ctx, pendingIDs))
	return &out, nil
}

// DetectDrift compares stored pending counters with the event log.
func (s *Service) DetectDrift(ctx context.Context, jobID string) (*models.DriftReport, error) {
	ledger, err := s.requireLedger(ctx, jobID)
	if err != nil {
		return nil, err
	}

	logs, err := s.logs.FindByJob(ctx, ledger.JobID)
	if err != nil {
		return nil, fmt.Errorf("load work logs: %w", err)
	}

	return &models.DriftReport{JobID: ledger.JobID, Drifted: Drift(ledger, logs)}, nil
}

// RepairDrift rewrites drifted pending counters to the event-derived value.
func (s *Service) RepairDrift(ctx context.Context, jobID string) (*models.DriftReport, error) {
	jobID = strings.TrimSpace(jobID)

	release, err := s.locker.Acquire(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer release()

	ledger, err := s.requireLedger(ctx, jobID)
	if err != nil {
		return nil, err
	}

	logs, err := s.logs.FindByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load work logs: %w", err)
	}

	report := &models.DriftReport{JobID: jobID, Drifted: Drift(ledger, logs)}
	if len(report.Drifted) == 0 {
		return report, nil
	}

	for _, d := range report.Drifted {
		op, _ := ledger.Operation(d.OperationID)
		op.PendingQuantity = d.RecomputedPending
	}

	if err := s.ledgers.ReplaceLedger(ctx, ledger); err != nil {
		if errors.Is(err, repository.ErrVersionMismatch) {
			return nil, &models.ConflictError{Resource: "job", ID: jobID, Reason: "ledger changed during repair, retry"}
		}
		return nil, fmt.Errorf("save repaired ledger: %w", err)
	}

	report.Repaired = true
	s.logger.Info("ledger drift repaired", zap.String("job_id", jobID), zap.Int("operations", len(report.Drifted)))
	return report, nil
}

func (s *Service) requireLedger(ctx context.Context, jobID string) (*models.JobLedger, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, models.NewValidationError("jobId is required")
	}

	ledger, err := s.ledgers.FindLedger(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if ledger == nil {
		return nil, &models.NotFoundError{Resource: "job", ID: jobID}
	}
	return ledger, nil
}

// operationNames degrades to an empty map when the catalog is unavailable.
func (s *Service) operationNames(ctx context.Context, ids []string) map[string]string {
	if s.catalog == nil || len(ids) == 0 {
		return map[string]string{}
	}
	names, err := s.catalog.OperationNames(ctx, ids)
	if err != nil {
		s.logger.Warn("operation catalog lookup failed, using fallback names", zap.Error(err))
		return map[string]string{}
	}
	return names
}

func (s *Service) contractorNames(ctx context.Context, ids []string) map[string]string {
	if s.catalog == nil || len(ids) == 0 {
		return map[string]string{}
	}
	names, err := s.catalog.ContractorNames(ctx, ids)
	if err != nil {
		s.logger.Warn("contractor directory lookup failed, using ids as names", zap.Error(err))
		return map[string]string{}
	}
	return names
}
