package jsonutil

import (
	"encoding/json"
	"fmt"
)

// FlexibleTextValue converts a json.RawMessage to text, handling clients
// that send payloads either as a JSON string or as inline JSON. A quoted
// string is unwrapped; arrays and objects pass through as their JSON
// text; numbers and booleans are stringified. Returns empty string for
// null/empty.
func FlexibleTextValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// Try string first
	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// Inline JSON rows: keep the raw text for the parser
	if raw[0] == '[' || raw[0] == '{' {
		return string(raw)
	}

	// Try number
	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	// Try boolean
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	// Fallback: return raw string representation
	return string(raw)
}
