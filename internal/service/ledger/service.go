package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/lock"
	"github.com/mamadbah2/piecework/internal/repository"
	"github.com/mamadbah2/piecework/internal/validation"
)

// CreateOrExtendRequest is the UI payload that assigns operations to a job.
type CreateOrExtendRequest struct {
	JobID      string                          `json:"jobId"`
	TotalUnits validation.Number               `json:"totalUnits"`
	Operations []validation.OperationSpecInput `json:"operations"`
}

// CreateOrExtendResult is the stored ledger plus what happened to each requested operation.
type CreateOrExtendResult struct {
	*models.JobLedger
	Created              bool               `json:"created"`
	AppendedOperationIDs []string           `json:"appendedOperationIds"`
	ExistingOperationIDs []string           `json:"existingOperationIds,omitempty"`
	Rejected             []models.Rejection `json:"rejected,omitempty"`
}

// Service manages the JobOpsMaster lifecycle.
type Service struct {
	store  repository.LedgerStore
	locker lock.Locker
	logger *zap.Logger
}

// NewService wires a ledger service.
func NewService(store repository.LedgerStore, locker lock.Locker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, locker: locker, logger: logger}
}

// CreateOrExtend creates the job's ledger or appends operations it does not
// hold yet. Existing quotas are never recomputed or duplicated.
func (s *Service) CreateOrExtend(ctx context.Context, req CreateOrExtendRequest) (*CreateOrExtendResult, error) {
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		return nil, models.NewValidationError("jobId is required")
	}
	if len(req.Operations) == 0 {
		return nil, models.NewValidationError("at least one operation is required")
	}

	var totalUnits float64
	if req.TotalUnits.Present() {
		res := validation.Coerce(req.TotalUnits, validation.NonNegative)
		if !res.OK() {
			return nil, models.NewValidationError("totalUnits %s", res.Reason)
		}
		totalUnits = res.Value
	}

	batch := validation.OperationSpecs(req.Operations)
	for _, r := range batch.Rejected {
		s.logger.Debug("operation spec rejected",
			zap.String("job_id", jobID),
			zap.Int("index", r.Index),
			zap.String("operation_id", r.OperationID),
			zap.String("reason", r.Reason))
	}
	if len(batch.Accepted) == 0 {
		return nil, &models.ValidationError{Message: "no valid operations to save", Rejected: batch.Rejected}
	}

	release, err := s.locker.Acquire(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.store.FindLedger(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	result := &CreateOrExtendResult{Rejected: batch.Rejected}

	if current == nil {
		ledger := &models.JobLedger{JobID: jobID, TotalUnits: totalUnits}
		for _, spec := range batch.Accepted {
			ledger.Operations = append(ledger.Operations, spec.Quota(totalUnits))
			result.AppendedOperationIDs = append(result.AppendedOperationIDs, spec.OperationID)
		}

		if err := s.store.InsertLedger(ctx, ledger); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return nil, &models.ConflictError{Resource: "job", ID: jobID, Reason: "ledger was created concurrently, retry"}
			}
			return nil, fmt.Errorf("create ledger: %w", err)
		}

		s.logger.Info("job ledger created", zap.String("job_id", jobID), zap.Int("operations", len(ledger.Operations)))
		result.JobLedger = ledger
		result.Created = true
		return result, nil
	}

	current.TotalUnits = totalUnits
	for _, spec := range batch.Accepted {
		if _, exists := current.Operation(spec.OperationID); exists {
			result.ExistingOperationIDs = append(result.ExistingOperationIDs, spec.OperationID)
			continue
		}
		current.Operations = append(current.Operations, spec.Quota(totalUnits))
		result.AppendedOperationIDs = append(result.AppendedOperationIDs, spec.OperationID)
	}

	if err := s.store.ReplaceLedger(ctx, current); err != nil {
		if errors.Is(err, repository.ErrVersionMismatch) {
			return nil, &models.ConflictError{Resource: "job", ID: jobID, Reason: "ledger changed while saving, retry"}
		}
		return nil, fmt.Errorf("save ledger: %w", err)
	}

	s.logger.Info("job ledger extended",
		zap.String("job_id", jobID),
		zap.Int("appended", len(result.AppendedOperationIDs)),
		zap.Int("existing", len(result.ExistingOperationIDs)))

	result.JobLedger = current
	return result, nil
}

// ListJobNumbers returns every job id that has a ledger, sorted ascending.
func (s *Service) ListJobNumbers(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListJobIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list job numbers: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
