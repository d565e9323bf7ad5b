package settlement

import "github.com/haggle/haggle-api/internal/pkg/x402"

// Rail selects how a settlement is routed.
type Rail string

const (
	// RailCreditsFirst deducts available credits before challenging for the residual.
	RailCreditsFirst Rail = "credits_first"

	// RailDirectExternal skips the ledger entirely; the residual is the full cost.
	RailDirectExternal Rail = "direct_external"
)

// ParseRail maps a string to a Rail, defaulting to credits-first.
func ParseRail(s string) Rail {
	if Rail(s) == RailDirectExternal {
		return RailDirectExternal
	}
	return RailCreditsFirst
}

// Status is the terminal state of one settlement attempt.
type Status string

const (
	// StatusFullyCovered means credits covered the whole cost.
	StatusFullyCovered Status = "fully_covered"

	// StatusResidualPending means a 402 challenge was issued for the residual.
	StatusResidualPending Status = "residual_pending"

	// StatusRecorded means the residual settled externally and both rails reconciled.
	StatusRecorded Status = "recorded"
)

// Request describes one settlement attempt. PaymentHeader is empty on the
// first attempt and carries the payment authorization on a resumed one.
type Request struct {
	Identity      string
	CostCents     int64
	Rail          Rail
	Resource      string
	PaymentHeader string
}

// Receipt is the verified result of an external settlement.
type Receipt struct {
	TxRef       string
	AmountCents int64
	Payer       string
}

// Outcome is the reconciled result of a settlement attempt.
type Outcome struct {
	Status        Status          `json:"status"`
	CreditCents   int64           `json:"credit_cents"`
	ExternalCents int64           `json:"external_cents"`
	CreditTxID    string          `json:"credit_tx_id,omitempty"`
	ExternalTxRef string          `json:"external_tx_ref,omitempty"`
	Challenge     *x402.Challenge `json:"challenge,omitempty"`
}
