package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/haggle/haggle-api/internal/pkg/metrics"
)

// maxDeductRetries bounds the conditional-update retry loop. Each retry
// re-reads the authoritative balance, and the balance only shrinks toward
// zero across retries, so the loop terminates well before this bound in
// practice.
const maxDeductRetries = 16

// Service exposes the credit ledger operations: atomic deduction, idempotent
// funding, idempotent refunds, and transaction history.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Deduct removes min(balance, requested) from the identity's balance using a
// guarded atomic update and appends a confirmed usage row for the deducted
// amount. A requested amount <= 0 is a zero-effect success. A lost race
// against a concurrent deduction retries the whole read-decide-update cycle.
func (s *Service) Deduct(ctx context.Context, identity string, requested int64) (*DeductResult, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrIdentityRequired
	}
	if requested <= 0 {
		return &DeductResult{Requested: requested}, nil
	}

	for attempt := 0; attempt < maxDeductRetries; attempt++ {
		acct, err := s.store.GetAccount(ctx, identity)
		if err != nil {
			return nil, err
		}

		var balance int64
		if acct != nil {
			balance = acct.Balance
		}
		toDeduct := requested
		if balance < toDeduct {
			toDeduct = balance
		}
		if toDeduct == 0 {
			return &DeductResult{Requested: requested, Remaining: requested}, nil
		}

		txn := &Transaction{
			ID:          uuid.New().String(),
			Identity:    identity,
			Kind:        KindUsage,
			AmountCents: -toDeduct,
			Status:      StatusConfirmed,
			Description: "credit deduction",
			CreatedAt:   time.Now(),
		}

		ok, err := s.store.DeductBalance(ctx, identity, toDeduct, txn)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Lost the race, re-read and decide again.
			continue
		}

		metrics.CreditsDeducted.Add(float64(toDeduct))
		return &DeductResult{
			TransactionID: txn.ID,
			Requested:     requested,
			Deducted:      toDeduct,
			Remaining:     requested - toDeduct,
		}, nil
	}

	return nil, ErrContention
}

// Refund credits back the amount of a prior usage transaction. Returns false
// without error when the original is absent, not a confirmed usage row, or
// already refunded. At most one refund row may ever reference an original id.
func (s *Service) Refund(ctx context.Context, originalID string) (bool, error) {
	original, err := s.store.GetTransaction(ctx, originalID)
	if err != nil {
		return false, err
	}
	if original == nil || original.Kind != KindUsage || original.Status != StatusConfirmed {
		return false, nil
	}

	refunded, err := s.store.HasRefundFor(ctx, originalID)
	if err != nil {
		return false, err
	}
	if refunded {
		log.Warn().Str("transaction_id", originalID).Msg("duplicate refund rejected")
		return false, nil
	}

	amount := -original.AmountCents
	refID := originalID
	txn := &Transaction{
		ID:          uuid.New().String(),
		Identity:    original.Identity,
		Kind:        KindRefund,
		AmountCents: amount,
		RefundOf:    &refID,
		Status:      StatusConfirmed,
		Description: "refund of " + originalID,
		CreatedAt:   time.Now(),
	}

	if err := s.store.CreditBalance(ctx, original.Identity, amount, false, txn); err != nil {
		if errors.Is(err, ErrDuplicateRefund) {
			log.Warn().Str("transaction_id", originalID).Msg("duplicate refund rejected")
			return false, nil
		}
		return false, err
	}

	metrics.CreditsRefunded.Add(float64(amount))
	log.Info().Str("identity", original.Identity).Int64("amount_cents", amount).
		Str("refund_of", originalID).Msg("credits refunded")
	return true, nil
}

// Mint funds an account after an external transfer is observed. Idempotent
// on externalTxRef: a retried call for a reference already confirmed returns
// success without mutating the balance again.
func (s *Service) Mint(ctx context.Context, identity string, amountCents int64, externalTxRef string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrIdentityRequired
	}
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(externalTxRef) == "" {
		return ErrExternalRefRequired
	}

	existing, err := s.store.FindByExternalRef(ctx, externalTxRef)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Info().Str("external_tx_ref", externalTxRef).Msg("duplicate funding ignored")
		return nil
	}

	ref := externalTxRef
	txn := &Transaction{
		ID:            uuid.New().String(),
		Identity:      identity,
		Kind:          KindPurchase,
		AmountCents:   amountCents,
		ExternalTxRef: &ref,
		Status:        StatusConfirmed,
		Description:   "credit purchase",
		CreatedAt:     time.Now(),
	}

	if err := s.store.CreditBalance(ctx, identity, amountCents, true, txn); err != nil {
		if errors.Is(err, ErrDuplicateExternalRef) {
			log.Info().Str("external_tx_ref", externalTxRef).Msg("duplicate funding ignored")
			return nil
		}
		return err
	}

	log.Info().Str("identity", identity).Int64("amount_cents", amountCents).
		Str("external_tx_ref", externalTxRef).Msg("credits minted")
	return nil
}

// RecordExternal appends a confirmed direct-external row for value settled
// outside the credit balance. Idempotent on the external reference: a replay
// returns the id of the already-recorded row.
func (s *Service) RecordExternal(ctx context.Context, identity string, amountCents int64, externalTxRef string) (string, error) {
	if amountCents <= 0 {
		return "", ErrInvalidAmount
	}
	if strings.TrimSpace(externalTxRef) == "" {
		return "", ErrExternalRefRequired
	}

	existing, err := s.store.FindByExternalRef(ctx, externalTxRef)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	ref := externalTxRef
	txn := &Transaction{
		ID:            uuid.New().String(),
		Identity:      identity,
		Kind:          KindDirectExternal,
		AmountCents:   amountCents,
		ExternalTxRef: &ref,
		Status:        StatusConfirmed,
		Description:   "external settlement",
		CreatedAt:     time.Now(),
	}

	if err := s.store.RecordExternal(ctx, txn); err != nil {
		if errors.Is(err, ErrDuplicateExternalRef) {
			if existing, lookupErr := s.store.FindByExternalRef(ctx, externalTxRef); lookupErr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", err
	}
	return txn.ID, nil
}

// GetBalance returns the current balance, zero for unfunded identities.
func (s *Service) GetBalance(ctx context.Context, identity string) (int64, error) {
	acct, err := s.store.GetAccount(ctx, identity)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 0, nil
	}
	return acct.Balance, nil
}

// LatestUsage returns the identity's most recent confirmed, unrefunded usage
// row inside the validity window, or nil. Used to recover a prior deduction
// on resumed settlement instead of deducting again.
func (s *Service) LatestUsage(ctx context.Context, identity string, window time.Duration) (*Transaction, error) {
	return s.store.LatestUsage(ctx, identity, time.Now().Add(-window))
}

// History returns the identity's transactions, newest first.
func (s *Service) History(ctx context.Context, identity string, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListTransactions(ctx, identity, limit, offset)
}
