package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ValidationError reports a value that failed a client-side check, either
// before submission or while decoding a backend payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type validator interface {
	Validate() error
}

// Decode unmarshals a single entity and rejects it if the shape or any
// invariant does not hold.
func Decode[T any, PT interface {
	*T
	validator
}](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, shapeError(err)
	}
	if err := PT(&v).Validate(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// DecodeList unmarshals a JSON array of entities, preserving order. A null
// body decodes to an empty, non-nil slice.
func DecodeList[T any, PT interface {
	*T
	validator
}](data []byte) ([]T, error) {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, shapeError(err)
	}
	if items == nil {
		items = []T{}
	}
	for i := range items {
		if err := PT(&items[i]).Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return items, nil
}

func shapeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ValidationError{Field: typeErr.Field, Reason: "unexpected " + typeErr.Value}
	}
	return &ValidationError{Reason: err.Error()}
}
