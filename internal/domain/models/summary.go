package models

// ContractorRef is a contractor referenced by a job summary.
type ContractorRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OperationSummary is the event-derived completion picture of one ledger operation.
type OperationSummary struct {
	OperationID           string             `json:"operationId"`
	Name                  string             `json:"name"`
	TotalQuantity         float64            `json:"totalQuantity"`
	TotalCompleted        float64            `json:"totalCompleted"`
	Pending               float64            `json:"pending"`
	CompletedByContractor map[string]float64 `json:"completedByContractor"`
}

// JobSummary is the per-contractor/per-operation completion matrix for a job.
type JobSummary struct {
	JobID       string             `json:"jobId"`
	Contractors []ContractorRef    `json:"contractors"`
	Operations  []OperationSummary `json:"operations"`
}

// PendingOperation is one row of the fast pending-work listing.
type PendingOperation struct {
	OperationID     string  `json:"operationId"`
	Name            string  `json:"name"`
	TotalQuantity   float64 `json:"totalQuantity"`
	PendingQuantity float64 `json:"pendingQuantity"`
	QuantityPerUnit float64 `json:"quantityPerUnit"`
	UnitRate        float64 `json:"unitRate"`
}

// PendingOperations is the fast-path view of outstanding work on a job.
type PendingOperations struct {
	JobID      string             `json:"jobId"`
	Operations []PendingOperation `json:"operations"`
}

// DriftEntry reports an operation whose stored pending counter disagrees with the event log.
type DriftEntry struct {
	OperationID       string  `json:"operationId"`
	StoredPending     float64 `json:"storedPending"`
	RecomputedPending float64 `json:"recomputedPending"`
	TotalCompleted    float64 `json:"totalCompleted"`
}

// DriftReport lists the drifted operations of one job.
type DriftReport struct {
	JobID    string       `json:"jobId"`
	Drifted  []DriftEntry `json:"drifted"`
	Repaired bool         `json:"repaired"`
}
