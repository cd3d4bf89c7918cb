package models

import "time"

// CompletionEvent is one contractor report of finished quantity for one operation.
// Events are immutable once appended.
type CompletionEvent struct {
	OperationID       string    `bson:"opsId" json:"operationId"`
	QuantityCompleted float64   `bson:"opsDoneQty" json:"quantityCompleted"`
	CompletedAt       time.Time `bson:"completionDate" json:"completedAt"`
	BatchID           string    `bson:"batchId,omitempty" json:"batchId,omitempty"`
}

// ContractorWorkLog is the append-only record of who did what on a job.
type ContractorWorkLog struct {
	ContractorID string            `bson:"contractorId" json:"contractorId"`
	JobID        string            `bson:"jobId" json:"jobId"`
	Events       []CompletionEvent `bson:"opsDone" json:"events"`
	BatchKeys    []string          `bson:"batchKeys,omitempty" json:"-"`
	CreatedAt    time.Time         `bson:"createdAt,omitempty" json:"createdAt"`
}

// CompletionEntry is a validated quantity reported against one operation.
type CompletionEntry struct {
	OperationID string
	Quantity    float64
}

// AppliedDelta is the outcome of one entry against the ledger.
type AppliedDelta struct {
	OperationID        string  `json:"operationId"`
	RequestedQuantity  float64 `json:"requestedQuantity"`
	NewPendingQuantity float64 `json:"newPendingQuantity"`
}

// CompletionResult is returned by the completion recorder.
type CompletionResult struct {
	ContractorID string         `json:"contractorId"`
	JobID        string         `json:"jobId"`
	BatchID      string         `json:"batchId,omitempty"`
	Replayed     bool           `json:"replayed"`
	Updates      []AppliedDelta `json:"updates"`
	Rejected     []Rejection    `json:"rejected,omitempty"`
}
