package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Schema creates the two collections the ledger persists to. The partial
// unique indexes are the idempotency boundary for funding and refunds.
const Schema = `
CREATE TABLE IF NOT EXISTS credit_accounts (
	identity           TEXT PRIMARY KEY,
	balance            BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	lifetime_purchased BIGINT NOT NULL DEFAULT 0,
	lifetime_used      BIGINT NOT NULL DEFAULT 0,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	id              TEXT PRIMARY KEY,
	identity        TEXT NOT NULL,
	kind            TEXT NOT NULL,
	amount_cents    BIGINT NOT NULL,
	external_tx_ref TEXT,
	refund_of       TEXT,
	status          TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ledger_tx_identity ON ledger_transactions (identity, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_tx_external_ref
	ON ledger_transactions (external_tx_ref) WHERE external_tx_ref IS NOT NULL AND status = 'confirmed';
CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_tx_refund_of
	ON ledger_transactions (refund_of) WHERE refund_of IS NOT NULL;
`

// PostgresStore implements Store on top of Postgres. Balance mutation goes
// through guarded single-statement updates, never read-modify-write in
// process memory.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies the ledger DDL. Safe to run on every boot.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, identity string) (*Account, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var acct Account
	err := s.db.GetContext(ctx2, &acct, `
		SELECT identity, balance, lifetime_purchased, lifetime_used, updated_at
		FROM credit_accounts
		WHERE identity = $1
	`, identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get account", ErrInternal)
	}
	return &acct, nil
}

func (s *PostgresStore) DeductBalance(ctx context.Context, identity string, amount int64, txn *Transaction) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx2, `
		UPDATE credit_accounts
		SET balance = balance - $2, lifetime_used = lifetime_used + $2, updated_at = now()
		WHERE identity = $1 AND balance >= $2
	`, identity, amount)
	if err != nil {
		return false, fmt.Errorf("%w: update balance", ErrInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows == 0 {
		return false, nil
	}

	if err := s.insertTxn(ctx2, tx, txn); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return true, nil
}

func (s *PostgresStore) CreditBalance(ctx context.Context, identity string, amount int64, purchased bool, txn *Transaction) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	if purchased {
		_, err = tx.ExecContext(ctx2, `
			INSERT INTO credit_accounts (identity, balance, lifetime_purchased)
			VALUES ($1, $2, $2)
			ON CONFLICT (identity) DO UPDATE SET
				balance = credit_accounts.balance + EXCLUDED.balance,
				lifetime_purchased = credit_accounts.lifetime_purchased + EXCLUDED.balance,
				updated_at = now()
		`, identity, amount)
	} else {
		_, err = tx.ExecContext(ctx2, `
			INSERT INTO credit_accounts (identity, balance, lifetime_used)
			VALUES ($1, $2, -$2)
			ON CONFLICT (identity) DO UPDATE SET
				balance = credit_accounts.balance + EXCLUDED.balance,
				lifetime_used = credit_accounts.lifetime_used - EXCLUDED.balance,
				updated_at = now()
		`, identity, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: upsert account", ErrInternal)
	}

	if err := s.insertTxn(ctx2, tx, txn); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return nil
}

func (s *PostgresStore) RecordExternal(ctx context.Context, txn *Transaction) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	if err := s.insertTxn(ctx2, tx, txn); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var txn Transaction
	err := s.db.GetContext(ctx2, &txn, selectTxn+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get transaction", ErrInternal)
	}
	return &txn, nil
}

func (s *PostgresStore) FindByExternalRef(ctx context.Context, ref string) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var txn Transaction
	err := s.db.GetContext(ctx2, &txn, selectTxn+` WHERE external_tx_ref = $1 AND status = 'confirmed' LIMIT 1`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find by external ref", ErrInternal)
	}
	return &txn, nil
}

func (s *PostgresStore) HasRefundFor(ctx context.Context, originalID string) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := s.db.GetContext(ctx2, &exists, `
		SELECT EXISTS (SELECT 1 FROM ledger_transactions WHERE kind = 'refund' AND refund_of = $1)
	`, originalID)
	if err != nil {
		return false, fmt.Errorf("%w: refund lookup", ErrInternal)
	}
	return exists, nil
}

func (s *PostgresStore) LatestUsage(ctx context.Context, identity string, since time.Time) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var txn Transaction
	err := s.db.GetContext(ctx2, &txn, selectTxn+`
		WHERE identity = $1 AND kind = 'usage' AND status = 'confirmed' AND created_at >= $2
		  AND NOT EXISTS (SELECT 1 FROM ledger_transactions r WHERE r.kind = 'refund' AND r.refund_of = ledger_transactions.id)
		ORDER BY created_at DESC
		LIMIT 1
	`, identity, since)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest usage", ErrInternal)
	}
	return &txn, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, identity string, limit, offset int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	txns := make([]Transaction, 0)
	err := s.db.SelectContext(ctx2, &txns, selectTxn+`
		WHERE identity = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, identity, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions", ErrInternal)
	}
	return txns, nil
}

const selectTxn = `
	SELECT id, identity, kind, amount_cents, external_tx_ref, refund_of, status, description, created_at
	FROM ledger_transactions`

func (s *PostgresStore) insertTxn(ctx context.Context, tx *sqlx.Tx, txn *Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_transactions (id, identity, kind, amount_cents, external_tx_ref, refund_of, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, txn.ID, txn.Identity, string(txn.Kind), txn.AmountCents, txn.ExternalTxRef, txn.RefundOf, string(txn.Status), txn.Description)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if txn.RefundOf != nil {
				return ErrDuplicateRefund
			}
			return ErrDuplicateExternalRef
		}
		return fmt.Errorf("%w: insert transaction", ErrInternal)
	}
	return nil
}
