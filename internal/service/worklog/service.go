package worklog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/lock"
	"github.com/mamadbah2/piecework/internal/repository"
	"github.com/mamadbah2/piecework/internal/validation"
)

const reasonNotAssigned = "operation not assigned to job"

// RecordRequest is a contractor's completion report for one job.
type RecordRequest struct {
	ContractorID   string                            `json:"contractorId"`
	JobID          string                            `json:"jobId"`
	IdempotencyKey string                            `json:"idempotencyKey,omitempty"`
	Entries        []validation.CompletionEntryInput `json:"entries"`
}

// Service records contractor completions against job ledgers.
type Service struct {
	ledgers repository.LedgerStore
	logs    repository.WorkLogStore
	tx      repository.Transactor
	locker  lock.Locker
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewService wires the completion recorder.
func NewService(ledgers repository.LedgerStore, logs repository.WorkLogStore, tx repository.Transactor, locker lock.Locker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ledgers: ledgers,
		logs:    logs,
		tx:      tx,
		locker:  locker,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// RecordCompletions appends the reported quantities to the contractor's work
// log, then decrements the ledger's pending counters clamped at zero. Both
// writes run under the job lock so a drift repair never observes the events
// without their decrements. Without transactions a failure between the two
// writes leaves drift that RepairDrift corrects from the log.
func (s *Service) RecordCompletions(ctx context.Context, req RecordRequest) (*models.CompletionResult, error) {
	contractorID := strings.TrimSpace(req.ContractorID)
	jobID := strings.TrimSpace(req.JobID)
	if contractorID == "" || jobID == "" {
		return nil, models.NewValidationError("contractorId and jobId are required")
	}

	ledger, err := s.ledgers.FindLedger(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if ledger == nil {
		return nil, &models.NotFoundError{Resource: "job", ID: jobID}
	}

	batch := validation.CompletionEntries(req.Entries)
	entries := make([]models.CompletionEntry, 0, len(batch.Accepted))
	rejected := batch.Rejected
	for i, entry := range batch.Accepted {
		if _, ok := ledger.Operation(entry.OperationID); !ok {
			rejected = append(rejected, models.Rejection{Index: batch.Positions[i], OperationID: entry.OperationID, Reason: reasonNotAssigned})
			continue
		}
		entries = append(entries, entry)
	}

	for _, r := range rejected {
		s.logger.Debug("completion entry rejected",
			zap.String("contractor_id", contractorID),
			zap.String("job_id", jobID),
			zap.Int("index", r.Index),
			zap.String("operation_id", r.OperationID),
			zap.String("reason", r.Reason))
	}
	if len(entries) == 0 {
		return nil, &models.ValidationError{Message: "no valid operations to update", Rejected: rejected}
	}

	now := s.now().UTC()
	batchID := s.newID()
	events := make([]models.CompletionEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, models.CompletionEvent{
			OperationID:       entry.OperationID,
			QuantityCompleted: entry.Quantity,
			CompletedAt:       now,
			BatchID:           batchID,
		})
	}

	result := &models.CompletionResult{
		ContractorID: contractorID,
		JobID:        jobID,
		BatchID:      batchID,
		Rejected:     rejected,
	}

	release, err := s.locker.Acquire(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		result.Updates = result.Updates[:0]

		appended, err := s.logs.AppendEvents(ctx, contractorID, jobID, strings.TrimSpace(req.IdempotencyKey), events)
		if err != nil {
			return fmt.Errorf("append completion events: %w", err)
		}
		if !appended {
			result.Replayed = true
			return nil
		}

		for _, entry := range entries {
			pending, err := s.ledgers.DecrementPending(ctx, jobID, entry.OperationID, entry.Quantity, now)
			if err != nil {
				return fmt.Errorf("decrement pending for %s: %w", entry.OperationID, err)
			}
			result.Updates = append(result.Updates, models.AppliedDelta{
				OperationID:        entry.OperationID,
				RequestedQuantity:  entry.Quantity,
				NewPendingQuantity: pending,
			})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("recording completions failed; ledger counters may drift until reconciled",
			zap.String("contractor_id", contractorID),
			zap.String("job_id", jobID),
			zap.String("batch_id", batchID),
			zap.Error(err))
		return nil, err
	}

	if result.Replayed {
		return s.replayResult(ctx, result, entries)
	}

	s.logger.Info("completions recorded",
		zap.String("contractor_id", contractorID),
		zap.String("job_id", jobID),
		zap.String("batch_id", batchID),
		zap.Int("entries", len(entries)))
	return result, nil
}

// replayResult answers a repeated idempotency key with current balances and no writes.
func (s *Service) replayResult(ctx context.Context, result *models.CompletionResult, entries []models.CompletionEntry) (*models.CompletionResult, error) {
	ledger, err := s.ledgers.FindLedger(ctx, result.JobID)
	if err != nil {
		return nil, fmt.Errorf("reload ledger: %w", err)
	}
	if ledger == nil {
		return nil, &models.NotFoundError{Resource: "job", ID: result.JobID}
	}

	result.BatchID = ""
	result.Updates = result.Updates[:0]
	for _, entry := range entries {
		op, _ := ledger.Operation(entry.OperationID)
		var pending float64
		if op != nil {
			pending = op.PendingQuantity
		}
		result.Updates = append(result.Updates, models.AppliedDelta{
			OperationID:        entry.OperationID,
			RequestedQuantity:  entry.Quantity,
			NewPendingQuantity: pending,
		})
	}

	s.logger.Info("completion batch replayed",
		zap.String("contractor_id", result.ContractorID),
		zap.String("job_id", result.JobID))
	return result, nil
}
