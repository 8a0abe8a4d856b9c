package statebus

import "errors"

var (
	// ErrInvalidPayload indicates a state message that could not be
	// decoded as the expected JSON envelope.
	ErrInvalidPayload = errors.New("statebus: invalid state payload")

	// ErrNoEntities indicates Subscribe was called with nothing to
	// subscribe to.
	ErrNoEntities = errors.New("statebus: no entity IDs given")

	// ErrInvalidCall indicates CallService was given an empty domain,
	// device ID or service name.
	ErrInvalidCall = errors.New("statebus: invalid service call")
)
