package store

import "errors"

var (
	// ErrTooManyReferences is returned when a document's reference and
	// descriptor checks cannot fit in a single store transaction. The write
	// is rejected outright rather than committed with truncated checks.
	ErrTooManyReferences = errors.New("edstore: reference checks exceed transaction item limit")

	// ErrInvalidPageToken is returned when a list page token cannot be decoded.
	ErrInvalidPageToken = errors.New("edstore: invalid page token")
)
