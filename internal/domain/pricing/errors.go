package pricing

import "errors"

var (
	// ErrIdentityRequired is returned when a lookup is attempted without an identity
	ErrIdentityRequired = errors.New("identity is required")

	// ErrStateNotFound is returned when advancing an identity that was never quoted
	ErrStateNotFound = errors.New("negotiation state not found")

	// ErrUnknownTier is returned when a tier id has no configuration
	ErrUnknownTier = errors.New("unknown pricing tier")

	ErrInternal = errors.New("internal pricing error")
)
