package fetch

import "errors"

// Fetch failure classes.
var (
	ErrTransient = errors.New("transient fetch failure")
	ErrFatal     = errors.New("fatal fetch failure")
)
