// Package xerrors holds the sentinel errors shared across layers.
package xerrors

import "errors"

var (
	// ErrNotFound: the referenced notification id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPayload: the event body could not be decoded into the
	// payload shape for its type. A caller error, not a server one.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrStoreUnavailable: the store could not be read. Distinct from an
	// empty result set; callers must surface it, not swallow it.
	ErrStoreUnavailable = errors.New("store unavailable")
)
