package book

import "errors"

// Sentinel errors surfaced by Order's internal transition checks. These
// should never reach a caller of Engine through normal use — external
// add requests with bad parameters are filtered at the engine boundary
// and turned into the zero id, not one of these errors. They can only
// fire if the engine itself drives an illegal fill, which is a bug.
var (
	// ErrInvalidArgument covers zero quantity, negative price, a limit
	// order with non-positive price, and an overfill.
	ErrInvalidArgument = errors.New("book: invalid argument")

	// ErrIllegalState covers attempting to fill an order that is
	// already FILLED or CANCELLED.
	ErrIllegalState = errors.New("book: illegal state")
)
