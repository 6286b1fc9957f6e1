package apperrors

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrValidation     = errors.New("invalid input")
	ErrSchemaNotFound = errors.New("schema not found")
	ErrSourceNotFound = errors.New("data source not found")
	ErrTypeLocked     = errors.New("field type cannot change while datasets exist")
	ErrParseFailed    = errors.New("could not parse import payload")
)
