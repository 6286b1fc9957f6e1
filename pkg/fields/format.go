package fields

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

// printer renders grouped numbers ("1,234.50"). Dashboard locale is fixed
// for now; per-user locales would thread a printer through instead.
var printer = message.NewPrinter(language.AmericanEnglish)

// Format renders a value for display according to its field definition.
// The input is never mutated; values that cannot be rendered in their
// field's style fall back to plain printing. Missing values render as "-".
func Format(value any, field models.FieldDefinition) string {
	if IsAbsent(value) {
		return "-"
	}

	switch field.Type {
	case models.FieldTypeCurrency:
		n, ok := ToNumber(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		symbol := field.DisplayFormat
		if symbol == "" {
			symbol = "$"
		}
		return printer.Sprintf("%s%v", symbol, number.Decimal(n, number.Scale(2)))

	case models.FieldTypePercentage:
		n, ok := ToNumber(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return fmt.Sprintf("%.2f%%", n)

	case models.FieldTypeNumber:
		n, ok := ToNumber(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return printer.Sprintf("%v", number.Decimal(n))

	case models.FieldTypeDate:
		t, ok := ToTime(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return t.Format("Jan 2, 2006")

	case models.FieldTypeDatetime:
		t, ok := ToTime(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return t.Format("Jan 2, 2006 3:04 PM")

	case models.FieldTypeBoolean:
		b, ok := ToBool(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		if b {
			return "Yes"
		}
		return "No"

	default:
		return fmt.Sprintf("%v", value)
	}
}
