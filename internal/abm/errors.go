package abm

import (
	"errors"
	"fmt"
)

// Validation failures. Each is returned wrapped with detail; match with
// errors.Is.
var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrMissingPredicate     = errors.New("a decodable where predicate is required")
	ErrUnknownMethod        = errors.New("unknown method")
	ErrMalformedBatch       = errors.New("malformed insert batch")
	ErrIdentifierRejected   = errors.New("identifier rejected")
	ErrMalformedBody        = errors.New("malformed request body")
)

var validationErrors = []error{
	ErrMissingRequiredField,
	ErrMissingPredicate,
	ErrUnknownMethod,
	ErrMalformedBatch,
	ErrIdentifierRejected,
	ErrMalformedBody,
}

// StoreError wraps a failed round-trip to the store. The underlying message
// is preserved for diagnostics.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a caller mistake rather than a store
// failure.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
