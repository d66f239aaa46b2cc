package chunking

import "errors"

// ErrCounterRequired is returned when a token counter is not provided.
var ErrCounterRequired = errors.New("token counter required")
