package service

import "errors"

var (
	// ErrDuplicateRequest carries the exact user-facing rejection message for
	// a request id the ledger has already accepted.
	ErrDuplicateRequest = errors.New("Identical payment request will not be handled more than once")

	// ErrBankCallTimedOut means the bounded wait for a bank answer expired on
	// every retry attempt.
	ErrBankCallTimedOut = errors.New("bank response timed out")
)

// ReasonTimeout is the externally-reported failure reason for exhausted-retry
// timeouts and for duplicate bank payment ids alike. PaymentResult.Cause
// keeps the two distinguishable.
const ReasonTimeout = "Timeout"
