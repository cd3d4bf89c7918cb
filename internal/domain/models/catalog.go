package models

import "github.com/shopspring/decimal"

// UnknownOperationName is shown for operation ids the catalog cannot resolve.
const UnknownOperationName = "Unknown"

// JobMetadata is the read-only view of a job held by the external relational catalog.
type JobMetadata struct {
	JobNumber  string          `json:"jobNumber"`
	ClientName string          `json:"clientName"`
	Title      string          `json:"title"`
	TotalUnits float64         `json:"totalUnits"`
	Category   string          `json:"category"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
}
