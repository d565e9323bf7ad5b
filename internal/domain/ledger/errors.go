package ledger

import "errors"

var (
	// ErrIdentityRequired is returned when an operation is attempted without an identity
	ErrIdentityRequired = errors.New("identity is required")

	// ErrInvalidAmount is returned when amount is <= 0
	ErrInvalidAmount = errors.New("invalid amount: must be greater than 0")

	// ErrExternalRefRequired is returned when funding lacks an external transaction reference
	ErrExternalRefRequired = errors.New("external transaction reference is required")

	// ErrDuplicateExternalRef is returned by stores when a confirmed row already carries the reference
	ErrDuplicateExternalRef = errors.New("external transaction reference already recorded")

	// ErrDuplicateRefund is returned by stores when a refund row already references the original transaction
	ErrDuplicateRefund = errors.New("refund already recorded for transaction")

	// ErrContention is returned when a deduction keeps losing the conditional update race
	ErrContention = errors.New("deduction retries exhausted under contention")

	ErrInternal = errors.New("internal ledger error")
)
