// Package x402 implements the boundary of the HTTP 402 challenge/response
// payment protocol: building payment requirements for a residual amount,
// decoding payment authorization headers, and converting between token
// atomic units and minor currency units.
package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// PaymentHeader carries the base64 payment authorization on a retried request.
	PaymentHeader = "X-Payment"

	// ProtocolVersion is the challenge/response protocol version we speak.
	ProtocolVersion = 1

	// SchemeExact requires a transfer of exactly the challenged amount.
	SchemeExact = "exact"

	// TransferEventTopic is the keccak256 signature of the ERC-20 Transfer
	// event. Settlement receipts must reference a log with this topic.
	TransferEventTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
)

// PaymentRequirements describes one acceptable way to pay a residual.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"max_amount_required"`
	Asset             string `json:"asset"`
	PayTo             string `json:"pay_to"`
	Resource          string `json:"resource"`
	Description       string `json:"description,omitempty"`
	MaxTimeoutSeconds int    `json:"max_timeout_seconds"`
	Nonce             string `json:"nonce"`
}

// Challenge is the 402 response body.
type Challenge struct {
	Version int                   `json:"x402_version"`
	Accepts []PaymentRequirements `json:"accepts"`
	Error   string                `json:"error,omitempty"`
}

// RailConfig identifies the network, payee and asset challenges are issued for.
type RailConfig struct {
	Network       string
	PayTo         string
	Asset         string
	AssetDecimals int
}

// NewChallenge builds a 402 challenge for a residual amount in cents.
func NewChallenge(cfg RailConfig, residualCents int64, resource string) *Challenge {
	return &Challenge{
		Version: ProtocolVersion,
		Accepts: []PaymentRequirements{{
			Scheme:            SchemeExact,
			Network:           cfg.Network,
			MaxAmountRequired: CentsToAtomic(residualCents, cfg.AssetDecimals),
			Asset:             cfg.Asset,
			PayTo:             cfg.PayTo,
			Resource:          resource,
			Description:       fmt.Sprintf("residual payment of %d cents", residualCents),
			MaxTimeoutSeconds: 300,
			Nonce:             uuid.New().String(),
		}},
	}
}

// PaymentPayload is the decoded payment authorization header.
type PaymentPayload struct {
	Version int          `json:"x402_version"`
	Scheme  string       `json:"scheme"`
	Network string       `json:"network"`
	Payload ExactPayload `json:"payload"`
}

// ExactPayload is the signed transfer authorization for the exact scheme.
// Value is in token atomic units.
type ExactPayload struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Nonce       string `json:"nonce"`
	ValidBefore int64  `json:"valid_before"`
	Signature   string `json:"signature"`
}

// DecodePayment parses a payment authorization header (base64 JSON).
func DecodePayment(header string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("invalid payment header encoding: %w", err)
	}

	var p PaymentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid payment header payload: %w", err)
	}
	if p.Scheme != SchemeExact {
		return nil, fmt.Errorf("unsupported payment scheme %q", p.Scheme)
	}
	return &p, nil
}

// EncodePayment is the inverse of DecodePayment.
func EncodePayment(p *PaymentPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// CentsToAtomic converts minor currency units to a token atomic-unit decimal
// string: cents * 10^decimals / 100.
func CentsToAtomic(cents int64, decimals int) string {
	v := new(big.Int).SetInt64(cents)
	v.Mul(v, pow10(decimals))
	v.Div(v, big.NewInt(100))
	return v.String()
}

// AtomicToCents converts a token atomic-unit decimal string to minor
// currency units, truncating any dust below one cent.
func AtomicToCents(amount string, decimals int) (int64, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok || v.Sign() < 0 {
		return 0, fmt.Errorf("invalid atomic amount %q", amount)
	}
	v.Mul(v, big.NewInt(100))
	v.Div(v, pow10(decimals))
	if !v.IsInt64() {
		return 0, fmt.Errorf("atomic amount %q out of range", amount)
	}
	return v.Int64(), nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
