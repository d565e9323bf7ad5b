package ledger

import (
	"context"
	"time"
)

// Store is the persistence contract for accounts and the transaction log.
// Implementations must provide atomic conditional balance updates: a
// DeductBalance call either applies the guarded update and appends the row,
// or reports that the guard failed, never a partial effect.
type Store interface {
	// GetAccount returns the account, or (nil, nil) when the identity has
	// never been funded.
	GetAccount(ctx context.Context, identity string) (*Account, error)

	// DeductBalance subtracts amount from the balance and appends txn, but
	// only if balance >= amount at the moment of the update. Returns false
	// when the guard rejects the update (insufficient balance or a lost
	// race against a concurrent deduction).
	DeductBalance(ctx context.Context, identity string, amount int64, txn *Transaction) (bool, error)

	// CreditBalance adds amount to the balance and appends txn, creating the
	// account if absent. purchased controls which lifetime counter moves:
	// true bumps lifetime_purchased, false lowers lifetime_used (refunds).
	// Returns ErrDuplicateExternalRef or ErrDuplicateRefund when txn collides
	// with an existing idempotency key.
	CreditBalance(ctx context.Context, identity string, amount int64, purchased bool, txn *Transaction) error

	// RecordExternal appends txn without touching any account. Returns
	// ErrDuplicateExternalRef when a confirmed row already carries the same
	// external reference.
	RecordExternal(ctx context.Context, txn *Transaction) error

	// GetTransaction returns the row by id, or (nil, nil) when absent.
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// FindByExternalRef returns the confirmed row carrying ref, or (nil, nil).
	FindByExternalRef(ctx context.Context, ref string) (*Transaction, error)

	// HasRefundFor reports whether a refund row already references the
	// original transaction id.
	HasRefundFor(ctx context.Context, originalID string) (bool, error)

	// LatestUsage returns the most recent confirmed usage row for the
	// identity created at or after since, or (nil, nil). Rows that a refund
	// row references are excluded.
	LatestUsage(ctx context.Context, identity string, since time.Time) (*Transaction, error)

	// ListTransactions returns the identity's rows, newest first.
	ListTransactions(ctx context.Context, identity string, limit, offset int) ([]Transaction, error)
}
