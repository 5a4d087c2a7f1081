package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors
var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("not found")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchOps
	ErrBatchTooLarge = errors.New("batch exceeds write limit")

	// ErrReconnectRequired is returned when an external account must be re-authorized
	ErrReconnectRequired = errors.New("reconnect required")

	// ErrMixedGranularity is returned when a window would hold both monthly
	// aggregates and individual transactions
	ErrMixedGranularity = errors.New("mixed aggregate and transaction records")

	// ErrInvalidRecord is returned when a record fails validation
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnavailable is returned when requested dates cannot be booked
	ErrUnavailable = errors.New("dates unavailable")

	// ErrUnknownProperty is returned for a property id missing from the catalog
	ErrUnknownProperty = errors.New("unknown property")
)

// MaxBatchOps is the per-batch write ceiling of the record store.
const MaxBatchOps = 500

// APIError describes a failed call to an external service.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the call may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// PhaseError reports which step of a multi-step store operation failed.
// Steps that completed before the failure are not rolled back.
type PhaseError struct {
	Phase     string
	Completed int
	Err       error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed after %d operations: %v", e.Phase, e.Completed, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
