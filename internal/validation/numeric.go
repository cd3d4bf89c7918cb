package validation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Rejection reasons produced by Coerce.
const (
	ReasonMissing     = "missing"
	ReasonNotANumber  = "not a number"
	ReasonNegative    = "must be non-negative"
	ReasonNotPositive = "must be greater than zero"
)

// Rule constrains the accepted range of a coerced number.
type Rule int

const (
	NonNegative Rule = iota
	Positive
)

// Number is a loosely-typed numeric field as received from the UI: a JSON
// number, a numeric string, or absent. Decoding never fails so that one bad
// field cannot abort the surrounding batch; the verdict is deferred to Coerce.
type Number struct {
	raw     string
	present bool
}

// NumberOf builds a present Number from a float.
func NumberOf(v float64) Number {
	return Number{raw: strconv.FormatFloat(v, 'f', -1, 64), present: true}
}

// NumberText builds a present Number from raw text.
func NumberText(s string) Number {
	return Number{raw: s, present: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "" || text == "null" {
		*n = Number{}
		return nil
	}

	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = Number{raw: text, present: true}
			return nil
		}
		*n = Number{raw: strings.TrimSpace(s), present: true}
		return nil
	}

	*n = Number{raw: text, present: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.present {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(n.raw, 64); err == nil {
		return []byte(n.raw), nil
	}
	return json.Marshal(n.raw)
}

// Present reports whether the field was supplied at all.
func (n Number) Present() bool { return n.present }

// Result is the tagged outcome of coercing a Number: either a value or a reason.
type Result struct {
	Value  float64
	Text   string
	Reason string
}

// OK reports whether coercion produced a usable value.
func (r Result) OK() bool { return r.Reason == "" }

// Coerce is the single numeric validation boundary applied to every numeric field.
func Coerce(n Number, rule Rule) Result {
	if !n.present {
		return Result{Reason: ReasonMissing}
	}
	if n.raw == "" {
		return Result{Reason: ReasonNotANumber}
	}

	v, err := strconv.ParseFloat(n.raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Result{Reason: ReasonNotANumber}
	}

	switch rule {
	case Positive:
		if v <= 0 {
			return Result{Reason: ReasonNotPositive}
		}
	default:
		if v < 0 {
			return Result{Reason: ReasonNegative}
		}
	}

	return Result{Value: v, Text: n.raw}
}

// CoerceDecimal coerces a monetary field, keeping the exact textual value.
func CoerceDecimal(n Number, rule Rule) (decimal.Decimal, Result) {
	res := Coerce(n, rule)
	if !res.OK() {
		return decimal.Zero, res
	}
	d, err := decimal.NewFromString(res.Text)
	if err != nil {
		return decimal.NewFromFloat(res.Value), res
	}
	return d, res
}
