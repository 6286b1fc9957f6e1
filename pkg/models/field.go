package models

import "strings"

// FieldType identifies the value domain of a schema field.
type FieldType string

const (
	FieldTypeString     FieldType = "string"
	FieldTypeNumber     FieldType = "number"
	FieldTypeBoolean    FieldType = "boolean"
	FieldTypeDate       FieldType = "date"
	FieldTypeDatetime   FieldType = "datetime"
	FieldTypeEmail      FieldType = "email"
	FieldTypeURL        FieldType = "url"
	FieldTypeCurrency   FieldType = "currency"
	FieldTypePercentage FieldType = "percentage"
	FieldTypeEnum       FieldType = "enum"
)

// ValidFieldTypes contains all valid field type values.
var ValidFieldTypes = []FieldType{
	FieldTypeString,
	FieldTypeNumber,
	FieldTypeBoolean,
	FieldTypeDate,
	FieldTypeDatetime,
	FieldTypeEmail,
	FieldTypeURL,
	FieldTypeCurrency,
	FieldTypePercentage,
	FieldTypeEnum,
}

// IsValidFieldType checks if the given field type is valid.
func IsValidFieldType(t FieldType) bool {
	for _, v := range ValidFieldTypes {
		if t == v {
			return true
		}
	}
	return false
}

// IsNumeric reports whether values of this type participate in numeric
// aggregation without coercion.
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeNumber || t == FieldTypeCurrency || t == FieldTypePercentage
}

// Aggregation identifies how a numeric column collapses to a single value.
type Aggregation string

const (
	AggregationSum    Aggregation = "sum"
	AggregationAvg    Aggregation = "avg"
	AggregationMin    Aggregation = "min"
	AggregationMax    Aggregation = "max"
	AggregationCount  Aggregation = "count"
	AggregationMedian Aggregation = "median"
	AggregationMode   Aggregation = "mode"
)

// ValidAggregations contains all valid aggregation values.
var ValidAggregations = []Aggregation{
	AggregationSum,
	AggregationAvg,
	AggregationMin,
	AggregationMax,
	AggregationCount,
	AggregationMedian,
	AggregationMode,
}

// IsValidAggregation checks if the given aggregation is valid.
func IsValidAggregation(a Aggregation) bool {
	for _, v := range ValidAggregations {
		if a == v {
			return true
		}
	}
	return false
}

// Visualization hints for dashboard rendering.
const (
	VisualizationNumber = "number"
	VisualizationBar    = "bar"
	VisualizationLine   = "line"
	VisualizationPie    = "pie"
	VisualizationTable  = "table"
)

// FieldDefinition describes a single column of a dataset schema.
// The ID is stable for the lifetime of the field and is the key under
// which imported rows store their values.
type FieldDefinition struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Type               FieldType   `json:"type"`
	Required           bool        `json:"required,omitempty"`
	Unique             bool        `json:"unique,omitempty"`
	EnumValues         []string    `json:"enum_values,omitempty"`
	Min                *float64    `json:"min,omitempty"`
	Max                *float64    `json:"max,omitempty"`
	Pattern            string      `json:"pattern,omitempty"`
	DisplayFormat      string      `json:"display_format,omitempty"`
	DefaultAggregation Aggregation `json:"default_aggregation,omitempty"`
	Visualization      string      `json:"visualization,omitempty"`
}

// NewFieldDefinition creates a field with an identifier derived from its
// name. Identifiers are lowercase snake_case so that metric formulas can
// reference them directly.
func NewFieldDefinition(name string, fieldType FieldType) FieldDefinition {
	return FieldDefinition{
		ID:   FieldID(name),
		Name: name,
		Type: fieldType,
	}
}

// FieldID derives a formula-safe identifier from a display name.
// "Avg Order Value" becomes "avg_order_value". Returns "field" for names
// with no usable characters.
func FieldID(name string) string {
	var b strings.Builder
	prevUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	id := strings.Trim(b.String(), "_")
	if id == "" {
		return "field"
	}
	// Identifiers cannot start with a digit.
	if id[0] >= '0' && id[0] <= '9' {
		id = "f_" + id
	}
	return id
}
