package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrInvalidItem = errors.New("invalid item")
	ErrUndecodable = errors.New("undecodable payload")
)

// FieldError describes one offending field. Field is empty when the record
// itself has the wrong shape.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// SchemaError lists every field that failed validation for a single record.
type SchemaError struct {
	Fields []FieldError
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid item: %s", strings.Join(parts, "; "))
}

func (e *SchemaError) Is(target error) bool { return target == ErrInvalidItem }

// DecodeError is returned when a payload is not a single JSON value.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode item: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrUndecodable }
