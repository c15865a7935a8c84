package repository

import "errors"

// Sentinel kinds for event store errors.
var (
	ErrNotFound    = errors.New("event not found")
	ErrCapacity    = errors.New("event store capacity reached")
	ErrInvalidSpan = errors.New("invalid query span")
)
