package store

import "errors"

// Error taxonomy. ErrValidation covers malformed messages rejected before
// persistence; ErrDelivery covers store-level failures; ErrNotFound covers
// lookups by id that match no row. All are errors.Is-able through wrapping.
var (
	ErrValidation = errors.New("validation failed")
	ErrDelivery   = errors.New("store unreachable")
	ErrNotFound   = errors.New("message not found")
)
