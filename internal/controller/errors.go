package controller

import "errors"

var (
	// ErrInvalidMode indicates an unrecognised mode string.
	ErrInvalidMode = errors.New("controller: invalid mode")
)
