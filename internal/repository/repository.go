// Package repository declares the persistence contracts of the operation ledger.
// Implementations live in the mongodb and memory subpackages.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

// ErrVersionMismatch is returned when a whole-record ledger write loses a race.
var ErrVersionMismatch = errors.New("ledger version mismatch")

// ErrDuplicateKey is returned when creating a record whose natural key already exists.
var ErrDuplicateKey = errors.New("duplicate natural key")

// LedgerStore persists JobOpsMaster records.
type LedgerStore interface {
	// FindLedger returns (nil, nil) when no ledger exists for jobID.
	FindLedger(ctx context.Context, jobID string) (*models.JobLedger, error)
	// InsertLedger creates a ledger at version 1; ErrDuplicateKey if jobID exists.
	InsertLedger(ctx context.Context, ledger *models.JobLedger) error
	// ReplaceLedger writes the whole record if the stored version equals
	// ledger.Version, then bumps the version. ErrVersionMismatch otherwise.
	ReplaceLedger(ctx context.Context, ledger *models.JobLedger) error
	// DecrementPending atomically applies pending = max(0, pending - qty) to
	// one operation, bumps the ledger version and returns the new pending value.
	DecrementPending(ctx context.Context, jobID, operationID string, qty float64, at time.Time) (float64, error)
	// ListJobIDs returns every job id in ascending order.
	ListJobIDs(ctx context.Context) ([]string, error)
}

// WorkLogStore persists Contractor_WD records.
type WorkLogStore interface {
	// AppendEvents atomically appends events to the (contractorID, jobID) log,
	// creating it when absent. A non-empty batchKey already recorded on the log
	// makes the call a no-op that returns appended=false.
	AppendEvents(ctx context.Context, contractorID, jobID, batchKey string, events []models.CompletionEvent) (appended bool, err error)
	// FindByJob returns every contractor log for jobID.
	FindByJob(ctx context.Context, jobID string) ([]models.ContractorWorkLog, error)
}

// CatalogReader resolves display names from the operation catalog and contractor directory.
type CatalogReader interface {
	OperationNames(ctx context.Context, ids []string) (map[string]string, error)
	ContractorNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Transactor runs fn so that all writes inside it commit together when the
// backing store supports it.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
