package synthesis

import "errors"

var (
	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrNilCompletion is returned when a generator reports success without a reply.
	ErrNilCompletion = errors.New("generator returned no completion")
)
