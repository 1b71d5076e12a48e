// Package apierr collects the small taxonomy of typed sentinel errors
// shared between the Store, the Command Router, and the HTTP and
// WebSocket facades. Callers compare with errors.Is; the facades map each
// sentinel to a wire/HTTP response exactly once, at the boundary.
package apierr

import "errors"

var (
	// ErrDeviceNotFound means no Device row exists for the given id.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceOffline means the Device row says offline.
	ErrDeviceOffline = errors.New("device offline")
	// ErrNotConnected means the Store says online but the Hub has no live
	// session — a legitimate transient, not a data inconsistency.
	ErrNotConnected = errors.New("not connected")
	// ErrValidation means a required field was missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrInternal wraps an unexpected failure (Store transient, etc.).
	ErrInternal = errors.New("internal error")
)

// HTTPStatus maps a sentinel from this package to the status code the REST
// facade returns for it. Errors it does not recognize map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return 404
	case errors.Is(err, ErrDeviceOffline):
		return 409
	case errors.Is(err, ErrNotConnected):
		return 409
	case errors.Is(err, ErrValidation):
		return 400
	default:
		return 500
	}
}
