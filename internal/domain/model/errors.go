package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrInvalidEvent = errors.New("invalid event")
)
