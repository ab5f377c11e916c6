package codec

import (
	"errors"
	"fmt"
)

// ErrSchema is the sentinel wrapped by every decode failure.
var ErrSchema = errors.New("schema mismatch")

// SchemaError describes where a payload stopped matching the schema.
type SchemaError struct {
	What   string // top-level value being decoded, e.g. "requests"
	Offset int    // byte offset of the failure
	Msg    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %s", e.What, e.Offset, e.Msg)
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}
