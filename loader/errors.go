package loader

import "errors"

var (
	// ErrUnsupportedType is returned for file extensions the loader cannot read.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoText is returned when a document yields no extractable text.
	ErrNoText = errors.New("document contains no text")
)
