package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/haggle/haggle-api/internal/pkg/x402"
)

// ExternalRail is the boundary to the value-transfer network: it issues 402
// challenges and settles presented authorizations.
type ExternalRail interface {
	// Challenge builds payment requirements for a residual amount.
	Challenge(residualCents int64, resource string) *x402.Challenge

	// Settle verifies a payment authorization against the expected residual
	// and the claimed sender, executes the transfer, and returns the receipt.
	// An ErrVerificationFailed result is an explicit, final rejection;
	// ErrRailUnavailable wraps transport failures that may be retried as-is.
	Settle(ctx context.Context, paymentHeader string, expectedCents int64, sender string) (*Receipt, error)
}

// X402Rail settles residuals through an x402 facilitator.
type X402Rail struct {
	client *x402.Client
	cfg    x402.RailConfig
}

func NewX402Rail(client *x402.Client, cfg x402.RailConfig) *X402Rail {
	return &X402Rail{client: client, cfg: cfg}
}

func (r *X402Rail) Challenge(residualCents int64, resource string) *x402.Challenge {
	return x402.NewChallenge(r.cfg, residualCents, resource)
}

func (r *X402Rail) Settle(ctx context.Context, paymentHeader string, expectedCents int64, sender string) (*Receipt, error) {
	payload, err := x402.DecodePayment(paymentHeader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	// Cheap local checks before touching the network: the claimed sender
	// must match the authorization and the authorized value must cover the
	// residual after unit conversion.
	if !strings.EqualFold(payload.Payload.From, sender) {
		return nil, fmt.Errorf("%w: sender %s does not match identity", ErrVerificationFailed, payload.Payload.From)
	}
	cents, err := x402.AtomicToCents(payload.Payload.Value, r.cfg.AssetDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if cents < expectedCents {
		return nil, fmt.Errorf("%w: authorized %d cents, residual is %d", ErrVerificationFailed, cents, expectedCents)
	}

	reqs := x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           r.cfg.Network,
		MaxAmountRequired: x402.CentsToAtomic(expectedCents, r.cfg.AssetDecimals),
		Asset:             r.cfg.Asset,
		PayTo:             r.cfg.PayTo,
	}

	verdict, err := r.client.Verify(ctx, payload, reqs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}
	if !verdict.IsValid {
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, verdict.InvalidReason)
	}

	receipt, err := r.client.Settle(ctx, payload, reqs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}
	if !receipt.Success {
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, receipt.Error)
	}

	// Confirm amount and sender from the transfer event itself rather than
	// trusting the facilitator's success flag alone.
	ev := receipt.Transfer
	if ev == nil || !strings.EqualFold(ev.Topic, x402.TransferEventTopic) {
		return nil, fmt.Errorf("%w: settlement receipt carries no transfer event", ErrVerificationFailed)
	}
	if !strings.EqualFold(ev.From, sender) {
		return nil, fmt.Errorf("%w: transfer sender %s does not match identity", ErrVerificationFailed, ev.From)
	}
	if !strings.EqualFold(ev.To, r.cfg.PayTo) {
		return nil, fmt.Errorf("%w: transfer recipient %s is not the payee", ErrVerificationFailed, ev.To)
	}
	transferred, err := x402.AtomicToCents(ev.Value, r.cfg.AssetDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if transferred < expectedCents {
		return nil, fmt.Errorf("%w: transferred %d cents, residual is %d", ErrVerificationFailed, transferred, expectedCents)
	}

	return &Receipt{
		TxRef:       receipt.TxHash,
		AmountCents: expectedCents,
		Payer:       payload.Payload.From,
	}, nil
}
