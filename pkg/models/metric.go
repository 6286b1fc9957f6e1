package models

import (
	"time"

	"github.com/google/uuid"
)

// CustomMetric is a user-defined derived value computed per row from a
// formula over field IDs ("revenue - cost", "clv * 0.2"). Dependencies
// are extracted from the formula at save time. Stored in
// engine_custom_metrics.
type CustomMetric struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Formula       string      `json:"formula"`
	Dependencies  []string    `json:"dependencies,omitempty"` // field IDs referenced by the formula
	MetricType    FieldType   `json:"metric_type"`            // how results render: number, currency, percentage
	DisplayFormat string      `json:"display_format,omitempty"`
	Aggregation   Aggregation `json:"aggregation,omitempty"` // how per-row values roll up
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
