package models

import (
	"time"

	"github.com/google/uuid"
)

// Source type values for data sources.
const (
	SourceTypeCSV    = "csv"
	SourceTypeJSON   = "json"
	SourceTypeAPI    = "api"
	SourceTypeManual = "manual"
)

// ValidSourceTypes contains all valid source type values.
var ValidSourceTypes = []string{
	SourceTypeCSV,
	SourceTypeJSON,
	SourceTypeAPI,
	SourceTypeManual,
}

// IsValidSourceType checks if the given source type is valid.
func IsValidSourceType(t string) bool {
	for _, v := range ValidSourceTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Source status values.
const (
	SourceStatusActive   = "active"
	SourceStatusInactive = "inactive"
	SourceStatusError    = "error"
)

// ImportMapping routes one source column to one schema field during import.
// Transformation names an optional value transformation; an empty string
// means the value passes through unchanged.
type ImportMapping struct {
	SourceColumn   string `json:"source_column"`
	TargetField    string `json:"target_field"`
	Transformation string `json:"transformation,omitempty"`
}

// DataSource binds an upload channel to a schema: where rows come from,
// how their columns map onto schema fields, and how the last import went.
// Stored in engine_data_sources.
type DataSource struct {
	ID           uuid.UUID       `json:"id"`
	SchemaID     uuid.UUID       `json:"schema_id"`
	Name         string          `json:"name"`
	SourceType   string          `json:"source_type"`
	Mappings     []ImportMapping `json:"mappings,omitempty"`
	SampleData   []Row           `json:"sample_data,omitempty"` // first rows of the last import
	LastImport   *time.Time      `json:"last_import,omitempty"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
