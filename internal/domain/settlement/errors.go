package settlement

import "errors"

var (
	// ErrIdentityRequired is returned before any ledger or pricing access when no identity is present
	ErrIdentityRequired = errors.New("identity is required")

	// ErrInvalidCost is returned when the action cost is not positive
	ErrInvalidCost = errors.New("invalid cost: must be greater than 0")

	// ErrVerificationFailed marks an explicit, verified settlement failure.
	// It triggers a refund of the credit portion and is retryable by the caller.
	ErrVerificationFailed = errors.New("settlement verification failed")

	// ErrRailUnavailable wraps transport failures toward the external rail.
	// No refund is performed: the credit deduction stays recoverable for a retry.
	ErrRailUnavailable = errors.New("external settlement rail unavailable")
)
