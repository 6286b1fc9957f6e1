package models

import (
	"time"

	"github.com/google/uuid"
)

// DatasetSchema defines the shape of a user-built dataset: an ordered list
// of field definitions plus presentation metadata. Stored in
// engine_custom_schemas with the field list as JSONB.
type DatasetSchema struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	Category    string            `json:"category,omitempty"`
	Fields      []FieldDefinition `json:"fields"`
	PrimaryKey  string            `json:"primary_key,omitempty"` // field ID, optional
	RecordCount int64             `json:"record_count"`          // refreshed on dataset save
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// FieldByID returns the field with the given ID, or nil.
func (s *DatasetSchema) FieldByID(id string) *FieldDefinition {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i]
		}
	}
	return nil
}

// FieldIDs returns the IDs of all fields in definition order.
func (s *DatasetSchema) FieldIDs() []string {
	ids := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		ids[i] = f.ID
	}
	return ids
}

// SchemaExportVersion is the format version written into schema export
// documents. Bump when the export shape changes incompatibly.
const SchemaExportVersion = "1"

// SchemaExport is the portable JSON document produced by schema export and
// consumed by schema import. The embedded schema keeps its field IDs so
// that metric formulas survive the round trip; the importing side mints a
// fresh schema ID and timestamps.
type SchemaExport struct {
	Version    string        `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Schema     DatasetSchema `json:"schema"`
}
