// Package memory provides a mutex-guarded in-process implementation of the
// repository contracts. It backs unit tests and STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mamadbah2/piecework/internal/domain/models"
	"github.com/mamadbah2/piecework/internal/repository"
)

type workLogKey struct {
	contractorID string
	jobID        string
}

// Store implements repository.LedgerStore, WorkLogStore, CatalogReader and Transactor.
type Store struct {
	mu          sync.RWMutex
	ledgers     map[string]*models.JobLedger
	workLogs    map[workLogKey]*models.ContractorWorkLog
	operations  map[string]string
	contractors map[string]string
	now         func() time.Time
}

var (
	_ repository.LedgerStore   = (*Store)(nil)
	_ repository.WorkLogStore  = (*Store)(nil)
	_ repository.CatalogReader = (*Store)(nil)
	_ repository.Transactor    = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		ledgers:     make(map[string]*models.JobLedger),
		workLogs:    make(map[workLogKey]*models.ContractorWorkLog),
		operations:  make(map[string]string),
		contractors: make(map[string]string),
		now:         time.Now,
	}
}

// SeedOperation registers an operation name in the catalog.
func (s *Store) SeedOperation(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[id] = name
}

// SeedContractor registers a contractor name in the directory.
func (s *Store) SeedContractor(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contractors[id] = name
}

func (s *Store) FindLedger(_ context.Context, jobID string) (*models.JobLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgers[jobID].Clone(), nil
}

func (s *Store) InsertLedger(_ context.Context, ledger *models.JobLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ledgers[ledger.JobID]; exists {
		return repository.ErrDuplicateKey
	}

	now := s.now().UTC()
	ledger.Version = 1
	ledger.CreatedAt = now
	ledger.UpdatedAt = now
	s.ledgers[ledger.JobID] = ledger.Clone()
	return nil
}

func (s *Store) ReplaceLedger(_ context.Context, ledger *models.JobLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.ledgers[ledger.JobID]
	if !ok || current.Version != ledger.Version {
		return repository.ErrVersionMismatch
	}

	ledger.Version++
	ledger.CreatedAt = current.CreatedAt
	ledger.UpdatedAt = s.now().UTC()
	s.ledgers[ledger.JobID] = ledger.Clone()
	return nil
}

func (s *Store) DecrementPending(_ context.Context, jobID, operationID string, qty float64, at time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, ok := s.ledgers[jobID]
	if !ok {
		return 0, &models.NotFoundError{Resource: "job", ID: jobID}
	}
	op, ok := ledger.Operation(operationID)
	if !ok {
		return 0, &models.NotFoundError{Resource: "operation", ID: operationID}
	}

	op.PendingQuantity -= min(qty, op.PendingQuantity)
	ts := at
	op.LastUpdated = &ts
	ledger.UpdatedAt = at
	ledger.Version++
	return op.PendingQuantity, nil
}

func (s *Store) ListJobIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.ledgers))
	for id := range s.ledgers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) AppendEvents(_ context.Context, contractorID, jobID, batchKey string, events []models.CompletionEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := workLogKey{contractorID: contractorID, jobID: jobID}
	log, ok := s.workLogs[key]
	if !ok {
		log = &models.ContractorWorkLog{ContractorID: contractorID, JobID: jobID, CreatedAt: s.now().UTC()}
		s.workLogs[key] = log
	}

	if batchKey != "" {
		for _, k := range log.BatchKeys {
			if k == batchKey {
				return false, nil
			}
		}
		log.BatchKeys = append(log.BatchKeys, batchKey)
	}

	log.Events = append(log.Events, events...)
	return true, nil
}

func (s *Store) FindByJob(_ context.Context, jobID string) ([]models.ContractorWorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ContractorWorkLog
	for key, log := range s.workLogs {
		if key.jobID != jobID {
			continue
		}
		cp := *log
		cp.Events = append([]models.CompletionEvent(nil), log.Events...)
		cp.BatchKeys = append([]string(nil), log.BatchKeys...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractorID < out[j].ContractorID })
	return out, nil
}

func (s *Store) OperationNames(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.operations, ids), nil
}

func (s *Store) ContractorNames(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.contractors, ids), nil
}

// WithinTransaction runs fn directly; each store call is already atomic.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func lookup(src map[string]string, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := src[id]; ok {
			out[id] = name
		}
	}
	return out
}
