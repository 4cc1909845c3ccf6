package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Entity operation errors.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrConflict      = errors.New("entity version conflict")
	ErrDatabase      = errors.New("database error")
	ErrConfiguration = errors.New("configuration error")
)

// Input validation errors.
var (
	ErrInvalidKey          = errors.New("invalid entity key")
	ErrInvalidEntityType   = errors.New("invalid entity type")
	ErrInvalidCursor       = errors.New("invalid list cursor")
	ErrInvalidTag          = errors.New("invalid tag")
	ErrInvalidData         = errors.New("entity data must be valid JSON")
	ErrInvalidVersion      = errors.New("version must be positive")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// ConflictError is returned when a write loses an optimistic concurrency
// race or a non-upsert create collides with an existing entity.
type ConflictError struct {
	Key EntityKey

	// Err is the backend error that signalled the conflict, if any.
	Err error
}

func (e *ConflictError) Error() string {
	msg := ErrConflict.Error()
	if e.Key.EntityID != "" {
		msg = fmt.Sprintf("%s: %s/%s/%s/%s", msg, e.Key.EntityType, e.Key.AccountID, e.Key.SubscriptionID, e.Key.EntityID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConflict) hold for every ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// DatabaseError wraps err so that errors.Is(err, ErrDatabase) holds while the
// backend error stays reachable.
func DatabaseError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDatabase, err)
}

// HTTPStatus maps an engine error onto the status code an HTTP handler
// should return for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrInvalidEntityType),
		errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrInvalidTag),
		errors.Is(err, ErrInvalidData),
		errors.Is(err, ErrInvalidVersion):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
