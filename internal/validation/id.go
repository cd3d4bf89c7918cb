package validation

import (
	"encoding/json"
	"strings"
)

// ReasonBadID is reported for identifiers that are neither strings nor numbers.
const ReasonBadID = "must be a string or number"

// ID is a loosely-typed identifier as received from the UI. Strings are kept
// as-is and numbers keep their JSON text; any other shape is remembered as
// invalid so the item, not the request, is rejected.
type ID struct {
	raw     string
	present bool
	valid   bool
}

// IDOf builds a present string ID.
func IDOf(s string) ID {
	return ID{raw: s, present: true, valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "" || text == "null" {
		*id = ID{}
		return nil
	}

	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*id = ID{raw: text, present: true}
			return nil
		}
		*id = IDOf(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = IDOf(n.String())
		return nil
	}

	*id = ID{raw: text, present: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.present {
		return []byte("null"), nil
	}
	if !id.valid {
		return []byte(id.raw), nil
	}
	return json.Marshal(id.raw)
}

// String returns the trimmed identifier, or "" when absent or invalid.
func (id ID) String() string {
	if !id.valid {
		return ""
	}
	return strings.TrimSpace(id.raw)
}

// CoerceID applies the identifier rules for field and returns the trimmed
// value or a rejection reason.
func CoerceID(field string, id ID) (string, string) {
	if !id.present {
		return "", field + " " + ReasonMissing
	}
	if !id.valid {
		return "", field + " " + ReasonBadID
	}
	value := id.String()
	if reason := varReason(field, value, "required,max=128"); reason != "" {
		return "", reason
	}
	return value, ""
}
