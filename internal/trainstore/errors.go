package trainstore

import "errors"

var (
	// ErrInvalidInstance indicates an instance that cannot be stored,
	// e.g. a non-finite target or no features at all.
	ErrInvalidInstance = errors.New("trainstore: invalid instance")
)
