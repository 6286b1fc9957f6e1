// Package fields implements per-value validation and display formatting
// for schema field types. Validation is deliberately forgiving about
// representation: imported CSV cells arrive as strings and JSON rows as
// native types, and both must land in the same dataset.
package fields

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is numeric after cleanup.
// Accepts optional sign, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// numericNoise strips formatting characters commonly found in spreadsheet
// exports: currency symbols, thousands separators, percent signs.
var numericNoise = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", "%", "", " ", "")

var (
	dateLayouts = []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"01-02-2006",
		"1/2/2006",
		"Jan 2, 2006",
		"2 Jan 2006",
	}

	dateTimeLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
)

// ToNumber coerces a value to float64. Strings are cleaned of currency
// and grouping noise first, so "$1,234.50" and "85%" both coerce. NaN and
// infinities are rejected so they cannot poison aggregations.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		s := numericNoise.Replace(strings.TrimSpace(n))
		if !numericRegex.MatchString(s) {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToBool coerces a value to bool. Strings go through strconv.ParseBool,
// so "true", "T", "1" and friends all coerce.
func ToBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return false, false
	}
}

// ToTime coerces a value to a time. Strings are tried against date and
// datetime layouts; numbers are treated as epoch milliseconds, which is
// how JSON exports commonly carry timestamps.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		if millis, ok := ToNumber(v); ok && millis >= 0 {
			return time.UnixMilli(int64(millis)).UTC(), true
		}
		return time.Time{}, false
	}
}

// IsAbsent reports whether a value counts as missing for required-field
// purposes: nil, or a string that is empty after trimming.
func IsAbsent(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
