package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrInvalidRegistration = errors.New("invalid registration")
	ErrClosed              = errors.New("store closed")
)
