package models

import (
	"time"

	"github.com/google/uuid"
)

// Row is one imported record, keyed by field ID.
type Row map[string]any

// CustomDataset holds the validated rows imported through a data source.
// A source has at most one dataset; re-imports overwrite it wholesale, so
// the source ID doubles as the primary key. Stored in
// engine_custom_datasets with rows as a JSONB array.
type CustomDataset struct {
	SourceID  uuid.UUID `json:"source_id"`
	SchemaID  uuid.UUID `json:"schema_id"`
	Data      []Row     `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImportResult summarizes one import run. Rows that fail validation are
// dropped, not errored; the counts are the only record of them.
type ImportResult struct {
	TotalRows    int `json:"total_rows"`
	ImportedRows int `json:"imported_rows"`
	DroppedRows  int `json:"dropped_rows"`
}
