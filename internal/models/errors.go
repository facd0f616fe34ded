package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for query validation.
var (
	ErrInvalidQuery  = errors.New("invalid query")
	ErrUnsupportedQG = errors.New("unsupported query graph")
	ErrUnknownValue  = errors.New("unknown value")
)

// Sentinel errors for binding consistency while merging provider answers.
var (
	ErrMissingProperty = errors.New("missing property")
	ErrMultipleQGIDs   = errors.New("multiple qg ids")
)

// ErrProviderComm indicates a failed round trip to a knowledge provider
// (timeout, non-200 status, or unreadable body). It never aborts an expansion.
var ErrProviderComm = errors.New("provider communication failure")

// ErrUnknownKey returns an ErrUnknownValue naming the missing role.
func ErrUnknownKey(kind, key string) error {
	return fmt.Errorf("%w: %s %q is not in the query graph", ErrUnknownValue, kind, key)
}
