package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haggle/haggle-api/internal/domain/ledger"
	"github.com/haggle/haggle-api/internal/pkg/metrics"
)

// DefaultRecoveryWindow bounds how far back a resumed settlement looks for
// the usage row of its prior credit deduction.
const DefaultRecoveryWindow = 10 * time.Minute

// Service orchestrates dual-rail settlement: credits are deducted and
// recorded before the external step begins, so waiting on the rail never
// holds up other identities' ledger operations.
type Service struct {
	ledger   *ledger.Service
	rail     ExternalRail
	cache    Cache
	recovery time.Duration
}

func NewService(ledgerSvc *ledger.Service, rail ExternalRail, cache Cache, recovery time.Duration) *Service {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if recovery <= 0 {
		recovery = DefaultRecoveryWindow
	}
	return &Service{ledger: ledgerSvc, rail: rail, cache: cache, recovery: recovery}
}

// Settle executes one settlement attempt. A request without a payment header
// deducts credits (unless the rail is direct-external) and either reports
// full coverage or issues a 402 challenge for the residual. A request with a
// header resumes a prior attempt: the earlier deduction is recovered, never
// repeated, the authorization is verified against the residual, and both
// rails are reconciled into one recorded outcome.
func (s *Service) Settle(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.Identity) == "" {
		return nil, ErrIdentityRequired
	}
	if req.CostCents <= 0 {
		return nil, ErrInvalidCost
	}

	if req.PaymentHeader != "" {
		return s.resume(ctx, req)
	}

	var creditCents int64
	var creditTxID string
	if req.Rail != RailDirectExternal {
		res, err := s.ledger.Deduct(ctx, req.Identity, req.CostCents)
		if err != nil {
			return nil, err
		}
		creditCents, creditTxID = res.Deducted, res.TransactionID

		if res.Remaining <= 0 {
			metrics.Settlements.WithLabelValues(string(StatusFullyCovered), string(req.Rail)).Inc()
			log.Info().Str("identity", req.Identity).Int64("cost_cents", req.CostCents).
				Str("credit_tx_id", creditTxID).Msg("settlement fully covered by credits")
			return &Outcome{
				Status:      StatusFullyCovered,
				CreditCents: creditCents,
				CreditTxID:  creditTxID,
			}, nil
		}
	}

	residual := req.CostCents - creditCents
	challenge := s.rail.Challenge(residual, req.Resource)
	metrics.ChallengesIssued.Inc()
	metrics.Settlements.WithLabelValues(string(StatusResidualPending), string(req.Rail)).Inc()
	log.Info().Str("identity", req.Identity).Int64("residual_cents", residual).
		Int64("credit_cents", creditCents).Msg("payment challenge issued")

	return &Outcome{
		Status:        StatusResidualPending,
		CreditCents:   creditCents,
		ExternalCents: residual,
		CreditTxID:    creditTxID,
		Challenge:     challenge,
	}, nil
}

// resume completes a settlement whose request already carries an
// authorization. No fresh credit deduction occurs here: the residual and
// the already-deducted portion are recovered from the most recent unrefunded
// usage row inside the validity window, since re-running the deduction would
// double-spend credits. A deduction a failed attempt already refunded is not
// recoverable, so the full cost falls to the external rail.
func (s *Service) resume(ctx context.Context, req Request) (*Outcome, error) {
	key := CacheKey(req.Identity, req.PaymentHeader)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		log.Info().Str("identity", req.Identity).Msg("settlement replayed from cache")
		return cached, nil
	}

	var creditCents int64
	var creditTxID string
	if req.Rail != RailDirectExternal {
		usage, err := s.ledger.LatestUsage(ctx, req.Identity, s.recovery)
		if err != nil {
			return nil, err
		}
		if usage != nil {
			creditCents = -usage.AmountCents
			creditTxID = usage.ID
			if creditCents > req.CostCents {
				creditCents = req.CostCents
			}
		}
	}

	residual := req.CostCents - creditCents
	if residual <= 0 {
		// Credits already covered everything; nothing left to settle.
		metrics.Settlements.WithLabelValues(string(StatusFullyCovered), string(req.Rail)).Inc()
		return &Outcome{
			Status:      StatusFullyCovered,
			CreditCents: creditCents,
			CreditTxID:  creditTxID,
		}, nil
	}

	receipt, err := s.rail.Settle(ctx, req.PaymentHeader, residual, req.Identity)
	if err != nil {
		if errors.Is(err, ErrVerificationFailed) && creditTxID != "" {
			// The user must never be charged credits for content they never
			// received: restore the credit portion before surfacing the failure.
			if refunded, refundErr := s.ledger.Refund(ctx, creditTxID); refundErr != nil {
				log.Error().Err(refundErr).Str("credit_tx_id", creditTxID).
					Msg("refund after settlement failure did not apply")
			} else if refunded {
				log.Info().Str("credit_tx_id", creditTxID).Int64("amount_cents", creditCents).
					Msg("credits refunded after settlement failure")
			}
		}
		metrics.Settlements.WithLabelValues("failed", string(req.Rail)).Inc()
		return nil, err
	}

	externalTxID, err := s.ledger.RecordExternal(ctx, req.Identity, residual, receipt.TxRef)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Status:        StatusRecorded,
		CreditCents:   creditCents,
		ExternalCents: residual,
		CreditTxID:    creditTxID,
		ExternalTxRef: receipt.TxRef,
	}
	if err := s.cache.Put(ctx, key, outcome); err != nil {
		log.Warn().Err(err).Msg("settlement outcome not cached")
	}

	metrics.Settlements.WithLabelValues(string(StatusRecorded), string(req.Rail)).Inc()
	log.Info().Str("identity", req.Identity).Int64("credit_cents", creditCents).
		Int64("external_cents", residual).Str("external_tx_ref", receipt.TxRef).
		Str("ledger_tx_id", externalTxID).Msg("settlement recorded")
	return outcome, nil
}
