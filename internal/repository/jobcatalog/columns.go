package jobcatalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

// Column spellings the catalog procedures have returned for each field.
var (
	jobNumberColumns  = []string{"JobNumber", "Job_Number", "jobNumber", "job_number", "JobNo", "Job_NO"}
	clientNameColumns = []string{"Client Name", "ClientName", "clientName"}
	titleColumns      = []string{"Job Title", "JobTitle", "jobTitle"}
	quantityColumns   = []string{"OrderQty", "orderQty", "Qty", "qty"}
	categoryColumns   = []string{"ProductCategory", "productCategory", "ProductCat", "productCat"}
	unitPriceColumns  = []string{"UnitPrice", "unitPrice", "unit_price"}
)

type row struct {
	columns []string
	values  map[string]any
}

// first returns the first non-empty value among names.
func (r row) first(names []string) (any, bool) {
	for _, name := range names {
		if v, ok := r.values[name]; ok && !isBlank(v) {
			return v, true
		}
	}
	return nil, false
}

func (r row) text(names []string) string {
	v, ok := r.first(names)
	if !ok {
		return ""
	}
	return asString(v)
}

func (r row) number(names []string) decimal.Decimal {
	v, ok := r.first(names)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(asString(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// jobNumberOf falls back to the first column when no known name is present.
func jobNumberOf(r row) string {
	if n := r.text(jobNumberColumns); n != "" {
		return n
	}
	if len(r.columns) == 0 {
		return ""
	}
	v := r.values[r.columns[0]]
	if isBlank(v) {
		return ""
	}
	return asString(v)
}

func metadataOf(r row) models.JobMetadata {
	return models.JobMetadata{
		ClientName: r.text(clientNameColumns),
		Title:      r.text(titleColumns),
		TotalUnits: r.number(quantityColumns).InexactFloat64(),
		Category:   r.text(categoryColumns),
		UnitPrice:  r.number(unitPriceColumns),
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return strings.TrimSpace(string(t))
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func isBlank(v any) bool {
	return asString(v) == ""
}
