package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

const ReasonDuplicateInBatch = "duplicate operationId in batch"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Batch is the explicit outcome of a validation pass over a request batch.
type Batch[T any] struct {
	Accepted []T
	// Positions holds the request index of each accepted item.
	Positions []int
	Rejected  []models.Rejection
}

// OperationSpecInput is one UI-entered operation assignment.
type OperationSpecInput struct {
	OperationID     ID     `json:"operationId"`
	QuantityPerUnit Number `json:"quantityPerUnit"`
	ValuePerUnit    Number `json:"valuePerUnit"`
}

// CompletionEntryInput is one contractor-reported quantity.
type CompletionEntryInput struct {
	OperationID ID     `json:"operationId"`
	Quantity    Number `json:"quantity"`
}

// OperationSpecs validates operation assignments. Later duplicates of an
// operationId within the same batch are rejected.
func OperationSpecs(inputs []OperationSpecInput) Batch[models.OperationSpec] {
	var out Batch[models.OperationSpec]
	seen := make(map[string]struct{}, len(inputs))

	for i, in := range inputs {
		opID, reason := CoerceID("operationId", in.OperationID)
		if reason != "" {
			out.Rejected = append(out.Rejected, models.Rejection{Index: i, OperationID: in.OperationID.String(), Reason: reason})
			continue
		}

		qty := Coerce(in.QuantityPerUnit, NonNegative)
		if !qty.OK() {
			out.Rejected = append(out.Rejected, models.Rejection{Index: i, OperationID: opID, Reason: "quantityPerUnit " + qty.Reason})
			continue
		}

		value, res := CoerceDecimal(in.ValuePerUnit, NonNegative)
		if !res.OK() {
			out.Rejected = append(out.Rejected, models.Rejection{Index: i, OperationID: opID, Reason: "valuePerUnit " + res.Reason})
			continue
		}

		if _, dup := seen[opID]; dup {
			out.Rejected = append(out.Rejected, models.Rejection{Index: i, OperationID: opID, Reason: ReasonDuplicateInBatch})
			continue
		}
		seen[opID] = struct{}{}

		out.Positions = append(out.Positions, i)
		out.Accepted = append(out.Accepted, models.OperationSpec{
			OperationID:     opID,
			QuantityPerUnit: qty.Value,
			ValuePerUnit:    value,
		})
	}

	return out
}

// CompletionEntries validates contractor-reported quantities. Quantities must be positive.
func CompletionEntries(inputs []CompletionEntryInput) Batch[models.CompletionEntry] {
	var out Batch[models.CompletionEntry]

	for i, in := range inputs {
		opID, reason := CoerceID("operationId", in.OperationID)
		if reason != "" {
			out.Rejected = append(out.Rejected, models.Rejection{Index: i, OperationID: in.OperationID.String(), Reason: reason})
			continue
		}

		qty := Coerce(in.Quantity, Positive)
		if !qty.OK() {
			out.Rejected = append(out.Rejected, models.Rejection{Index: i, OperationID: opID, Reason: "quantity " + qty.Reason})
			continue
		}

		out.Positions = append(out.Positions, i)
		out.Accepted = append(out.Accepted, models.CompletionEntry{OperationID: opID, Quantity: qty.Value})
	}

	return out
}

func varReason(field string, value any, tags string) string {
	err := validate.Var(value, tags)
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return field + " " + ReasonMissing
	case "max":
		return fmt.Sprintf("%s longer than %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
