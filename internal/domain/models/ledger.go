package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationQuota is the required and remaining count of one operation within a job.
// Field names on the wire and in storage follow the JobOpsMaster collection layout.
type OperationQuota struct {
	OperationID     string          `bson:"opId" json:"operationId"`
	QuantityPerUnit float64         `bson:"qtyPerBook" json:"quantityPerUnit"`
	TotalQuantity   float64         `bson:"totalOpsQty" json:"totalQuantity"`
	PendingQuantity float64         `bson:"pendingOpsQty" json:"pendingQuantity"`
	ValuePerUnit    decimal.Decimal `bson:"valuePerBook" json:"valuePerUnit"`
	LastUpdated     *time.Time      `bson:"lastUpdatedDate,omitempty" json:"lastUpdated,omitempty"`
}

// UnitRate is the monetary rate of a single operation, zero when QuantityPerUnit is zero.
func (q OperationQuota) UnitRate() decimal.Decimal {
	if q.QuantityPerUnit <= 0 {
		return decimal.Zero
	}
	return q.ValuePerUnit.Div(decimal.NewFromFloat(q.QuantityPerUnit))
}

// JobLedger is the system of record for how much work remains on a job.
type JobLedger struct {
	JobID      string           `bson:"jobId" json:"jobId"`
	TotalUnits float64          `bson:"totalQty" json:"totalUnits"`
	Operations []OperationQuota `bson:"ops" json:"operations"`
	Version    int64            `bson:"version" json:"version"`
	CreatedAt  time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time        `bson:"updatedAt" json:"updatedAt"`
}

// Operation returns the quota for operationID, if present.
func (l *JobLedger) Operation(operationID string) (*OperationQuota, bool) {
	for i := range l.Operations {
		if l.Operations[i].OperationID == operationID {
			return &l.Operations[i], true
		}
	}
	return nil, false
}

// OperationIDs lists the ledger's operation ids in ledger order.
func (l *JobLedger) OperationIDs() []string {
	ids := make([]string, 0, len(l.Operations))
	for _, op := range l.Operations {
		ids = append(ids, op.OperationID)
	}
	return ids
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (l *JobLedger) Clone() *JobLedger {
	if l == nil {
		return nil
	}
	out := *l
	out.Operations = make([]OperationQuota, len(l.Operations))
	for i, op := range l.Operations {
		if op.LastUpdated != nil {
			ts := *op.LastUpdated
			op.LastUpdated = &ts
		}
		out.Operations[i] = op
	}
	return &out
}

// OperationSpec is a validated request to add an operation quota to a job.
type OperationSpec struct {
	OperationID     string
	QuantityPerUnit float64
	ValuePerUnit    decimal.Decimal
}

// Quota materializes the spec against the job's total units.
func (s OperationSpec) Quota(totalUnits float64) OperationQuota {
	total := s.QuantityPerUnit * totalUnits
	return OperationQuota{
		OperationID:     s.OperationID,
		QuantityPerUnit: s.QuantityPerUnit,
		TotalQuantity:   total,
		PendingQuantity: total,
		ValuePerUnit:    s.ValuePerUnit,
	}
}
