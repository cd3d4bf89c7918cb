package reconcile

import (
	"math"
	"sort"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

const driftTolerance = 1e-9

// completionTotals is the event-derived completion matrix of one job.
type completionTotals struct {
	byOperation   map[string]float64
	byContractor  map[string]map[string]float64
	contractorIDs []string
}

// tally sums completion events per operation and per contractor. Events for
// operations the ledger does not hold are ignored.
func tally(ledger *models.JobLedger, logs []models.ContractorWorkLog) completionTotals {
	known := make(map[string]struct{}, len(ledger.Operations))
	for _, op := range ledger.Operations {
		known[op.OperationID] = struct{}{}
	}

	t := completionTotals{
		byOperation:  make(map[string]float64),
		byContractor: make(map[string]map[string]float64),
	}
	seen := make(map[string]struct{}, len(logs))

	for _, log := range logs {
		if _, dup := seen[log.ContractorID]; !dup {
			seen[log.ContractorID] = struct{}{}
			t.contractorIDs = append(t.contractorIDs, log.ContractorID)
		}

		for _, ev := range log.Events {
			if ev.OperationID == "" {
				continue
			}
			if _, ok := known[ev.OperationID]; !ok {
				continue
			}
			perContractor, ok := t.byContractor[ev.OperationID]
			if !ok {
				perContractor = make(map[string]float64)
				t.byContractor[ev.OperationID] = perContractor
			}
			perContractor[log.ContractorID] += ev.QuantityCompleted
			t.byOperation[ev.OperationID] += ev.QuantityCompleted
		}
	}

	sort.Strings(t.contractorIDs)
	return t
}

func recomputedPending(total, completed float64) float64 {
	return math.Max(0, total-completed)
}

// Summarize builds the authoritative completion matrix from the event log.
// Totals are unclamped so over-reporting stays visible; pending is derived
// fresh and never read from the ledger's stored counter.
func Summarize(ledger *models.JobLedger, logs []models.ContractorWorkLog, operationNames, contractorNames map[string]string) models.JobSummary {
	summary := models.JobSummary{
		Contractors: []models.ContractorRef{},
		Operations:  []models.OperationSummary{},
	}
	if ledger == nil {
		return summary
	}
	summary.JobID = ledger.JobID

	totals := tally(ledger, logs)

	for _, id := range totals.contractorIDs {
		name := contractorNames[id]
		if name == "" {
			name = id
		}
		summary.Contractors = append(summary.Contractors, models.ContractorRef{ID: id, Name: name})
	}

	for _, op := range ledger.Operations {
		name := operationNames[op.OperationID]
		if name == "" {
			name = models.UnknownOperationName
		}

		byContractor := totals.byContractor[op.OperationID]
		if byContractor == nil {
			byContractor = map[string]float64{}
		}

		completed := totals.byOperation[op.OperationID]
		summary.Operations = append(summary.Operations, models.OperationSummary{
			OperationID:           op.OperationID,
			Name:                  name,
			TotalQuantity:         op.TotalQuantity,
			TotalCompleted:        completed,
			Pending:               recomputedPending(op.TotalQuantity, completed),
			CompletedByContractor: byContractor,
		})
	}

	return summary
}

// Drift lists operations whose stored pending counter disagrees with the
// value recomputed from the event log.
func Drift(ledger *models.JobLedger, logs []models.ContractorWorkLog) []models.DriftEntry {
	drifted := []models.DriftEntry{}
	if ledger == nil {
		return drifted
	}

	totals := tally(ledger, logs)
	for _, op := range ledger.Operations {
		completed := totals.byOperation[op.OperationID]
		want := recomputedPending(op.TotalQuantity, completed)
		if math.Abs(want-op.PendingQuantity) <= driftTolerance {
			continue
		}
		drifted = append(drifted, models.DriftEntry{
			OperationID:       op.OperationID,
			StoredPending:     op.PendingQuantity,
			RecomputedPending: want,
			TotalCompleted:    completed,
		})
	}
	return drifted
}

// Pending filters the ledger to operations with outstanding work. This is the
// fast path; it trusts the stored counters.
func Pending(ledger *models.JobLedger, operationNames map[string]string) models.PendingOperations {
	out := models.PendingOperations{JobID: ledger.JobID, Operations: []models.PendingOperation{}}

	for _, op := range ledger.Operations {
		if op.PendingQuantity <= 0 {
			continue
		}
		name := operationNames[op.OperationID]
		if name == "" {
			name = models.UnknownOperationName
		}
		out.Operations = append(out.Operations, models.PendingOperation{
			OperationID:     op.OperationID,
			Name:            name,
			TotalQuantity:   op.TotalQuantity,
			PendingQuantity: op.PendingQuantity,
			QuantityPerUnit: op.QuantityPerUnit,
			UnitRate:        op.UnitRate().InexactFloat64(),
		})
	}
	return out
}
