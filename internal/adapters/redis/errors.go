package redis

import "errors"

// ErrAddrRequired is returned when no server address is configured.
var ErrAddrRequired = errors.New("redis address is required")
