package trapi

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/persistorai/kpfed/internal/models"
)

// ProviderError is returned when a provider answers with a non-200 status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap lets callers match ErrProviderComm with errors.Is.
func (e *ProviderError) Unwrap() error { return models.ErrProviderComm }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}

	return 0
}

// IsTimeout reports whether err was caused by a deadline expiring.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error

	return errors.As(err, &ne) && ne.Timeout()
}
