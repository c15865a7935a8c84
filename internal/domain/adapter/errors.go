package adapter

import "errors"

var (
	// ErrSkip marks a raw record that can't become an event. It is a per-item
	// outcome, never a job failure.
	ErrSkip = errors.New("record skipped")
	// ErrDecode is returned when a raw payload isn't a JSON array of items.
	ErrDecode = errors.New("decode raw records")
	// ErrNoAdapter is returned when no adapter is registered for a source type.
	ErrNoAdapter = errors.New("no adapter for source type")
)
