package fields

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate reports whether a single value satisfies a field definition.
// Missing values pass unless the field is required; present values are
// checked against the field's type and constraints. Unknown field types
// validate as true so that schema evolution never strands old data.
func Validate(value any, field models.FieldDefinition) bool {
	if IsAbsent(value) {
		return !field.Required
	}

	switch field.Type {
	case models.FieldTypeNumber, models.FieldTypeCurrency, models.FieldTypePercentage:
		n, ok := ToNumber(value)
		if !ok {
			return false
		}
		if field.Min != nil && n < *field.Min {
			return false
		}
		if field.Max != nil && n > *field.Max {
			return false
		}
		return true

	case models.FieldTypeString:
		s, ok := stringForm(value)
		if !ok {
			return false
		}
		if field.Pattern != "" {
			re, err := regexp.Compile(field.Pattern)
			if err != nil {
				// An uncompilable pattern constrains nothing.
				return true
			}
			return re.MatchString(s)
		}
		return true

	case models.FieldTypeEmail:
		s, ok := stringForm(value)
		return ok && emailRegex.MatchString(strings.TrimSpace(s))

	case models.FieldTypeURL:
		s, ok := stringForm(value)
		if !ok {
			return false
		}
		u, err := url.Parse(strings.TrimSpace(s))
		return err == nil && u.Scheme != "" && u.Host != ""

	case models.FieldTypeBoolean:
		_, ok := ToBool(value)
		return ok

	case models.FieldTypeDate, models.FieldTypeDatetime:
		_, ok := ToTime(value)
		return ok

	case models.FieldTypeEnum:
		s, ok := stringForm(value)
		if !ok {
			return false
		}
		for _, allowed := range field.EnumValues {
			if s == allowed {
				return true
			}
		}
		return false

	default:
		return true
	}
}

// stringForm renders scalar values as strings for text-family checks.
// Composite values (maps, slices) never validate as text.
func stringForm(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool, float64, float32, int, int32, int64:
		return fmt.Sprintf("%v", s), true
	default:
		return "", false
	}
}
