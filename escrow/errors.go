package escrow

import "errors"

var (
	// ErrUnauthorized is returned when the caller identity does not match the
	// role a guarded operation requires.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrNotListed is returned for operations on an asset with no active
	// listing.
	ErrNotListed = errors.New("escrow: asset not listed")
	// ErrPreconditionNotMet is returned when finalize is invoked before the
	// inspection, legal, approval, or balance conditions are satisfied. The
	// wrapped message names the missing condition.
	ErrPreconditionNotMet = errors.New("escrow: precondition not met")
	// ErrInsufficientFunds is returned when an earnest deposit is below the
	// listing's required escrow amount.
	ErrInsufficientFunds = errors.New("escrow: deposit below required escrow amount")
	// ErrInsufficientBalance is returned when a payout or refund would exceed
	// the balance actually available to cover it.
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
)
