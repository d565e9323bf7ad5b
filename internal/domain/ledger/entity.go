package ledger

import "time"

// Kind defines supported ledger transaction kinds.
type Kind string

const (
	KindPurchase       Kind = "purchase"
	KindUsage          Kind = "usage"
	KindDirectExternal Kind = "direct_external"
	KindRefund         Kind = "refund"
	KindAdjustment     Kind = "adjustment"
)

// Status represents transaction status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Account holds the prepaid credit balance for one identity.
// Created lazily on first funding, never deleted.
type Account struct {
	Identity          string    `db:"identity" json:"identity"`
	Balance           int64     `db:"balance" json:"balance"`
	LifetimePurchased int64     `db:"lifetime_purchased" json:"lifetime_purchased"`
	LifetimeUsed      int64     `db:"lifetime_used" json:"lifetime_used"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is an immutable, append-only ledger row. Amounts are signed
// minor currency units: negative for usage, positive for credit-increasing
// kinds. DirectExternal rows record value settled outside the credit balance
// and never mutate the account.
type Transaction struct {
	ID            string    `db:"id" json:"id"`
	Identity      string    `db:"identity" json:"identity"`
	Kind          Kind      `db:"kind" json:"kind"`
	AmountCents   int64     `db:"amount_cents" json:"amount_cents"`
	ExternalTxRef *string   `db:"external_tx_ref" json:"external_tx_ref,omitempty"`
	RefundOf      *string   `db:"refund_of" json:"refund_of,omitempty"`
	Status        Status    `db:"status" json:"status"`
	Description   string    `db:"description" json:"description"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DeductResult reports how much of a requested deduction was actually
// covered by the balance.
type DeductResult struct {
	TransactionID string `json:"transaction_id,omitempty"`
	Requested     int64  `json:"requested"`
	Deducted      int64  `json:"deducted"`
	Remaining     int64  `json:"remaining"`
}
