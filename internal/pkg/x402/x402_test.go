package x402_test

import (
	"testing"

	"github.com/haggle/haggle-api/internal/pkg/x402"
)

func TestPaymentRoundTrip(t *testing.T) {
	payload := &x402.PaymentPayload{
		Version: x402.ProtocolVersion,
		Scheme:  x402.SchemeExact,
		Network: "base-sepolia",
		Payload: x402.ExactPayload{
			From:        "0xsender",
			To:          "0xpayee",
			Value:       "400000",
			Nonce:       "n-1",
			ValidBefore: 1700000000,
			Signature:   "0xsig",
		},
	}

	header, err := x402.EncodePayment(payload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := x402.DecodePayment(header)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Payload.From != "0xsender" || decoded.Payload.Value != "400000" {
		t.Fatalf("round trip mismatch: %+v", decoded.Payload)
	}
}

func TestDecodePaymentRejectsGarbage(t *testing.T) {
	if _, err := x402.DecodePayment("not base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := x402.DecodePayment("aGVsbG8="); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
}

func TestDecodePaymentRejectsUnknownScheme(t *testing.T) {
	header, err := x402.EncodePayment(&x402.PaymentPayload{
		Version: x402.ProtocolVersion,
		Scheme:  "streaming",
		Network: "base-sepolia",
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := x402.DecodePayment(header); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestCentsToAtomic(t *testing.T) {
	cases := []struct {
		cents    int64
		decimals int
		want     string
	}{
		{40, 6, "400000"},
		{1, 6, "10000"},
		{250, 6, "2500000"},
		{100, 2, "100"},
		{0, 6, "0"},
	}
	for _, c := range cases {
		if got := x402.CentsToAtomic(c.cents, c.decimals); got != c.want {
			t.Errorf("CentsToAtomic(%d, %d) = %s, want %s", c.cents, c.decimals, got, c.want)
		}
	}
}

func TestAtomicToCents(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int
		want     int64
	}{
		{"400000", 6, 40},
		{"10000", 6, 1},
		{"2500000", 6, 250},
		// Dust below one cent truncates.
		{"409999", 6, 40},
	}
	for _, c := range cases {
		got, err := x402.AtomicToCents(c.amount, c.decimals)
		if err != nil {
			t.Errorf("AtomicToCents(%s, %d) errored: %v", c.amount, c.decimals, err)
			continue
		}
		if got != c.want {
			t.Errorf("AtomicToCents(%s, %d) = %d, want %d", c.amount, c.decimals, got, c.want)
		}
	}

	if _, err := x402.AtomicToCents("-5", 6); err == nil {
		t.Error("expected error for negative amount")
	}
	if _, err := x402.AtomicToCents("abc", 6); err == nil {
		t.Error("expected error for non-numeric amount")
	}
}

func TestNewChallenge(t *testing.T) {
	cfg := x402.RailConfig{
		Network:       "base-sepolia",
		PayTo:         "0xpayee",
		Asset:         "0xusdc",
		AssetDecimals: 6,
	}

	ch := x402.NewChallenge(cfg, 40, "/api/v1/content/unlock")
	if ch.Version != x402.ProtocolVersion {
		t.Fatalf("expected version %d, got %d", x402.ProtocolVersion, ch.Version)
	}
	if len(ch.Accepts) != 1 {
		t.Fatalf("expected one payment requirement, got %d", len(ch.Accepts))
	}

	req := ch.Accepts[0]
	if req.Scheme != x402.SchemeExact {
		t.Fatalf("expected exact scheme, got %s", req.Scheme)
	}
	if req.MaxAmountRequired != "400000" {
		t.Fatalf("expected 400000 atomic units, got %s", req.MaxAmountRequired)
	}
	if req.PayTo != "0xpayee" || req.Network != "base-sepolia" {
		t.Fatalf("requirement does not carry rail config: %+v", req)
	}
	if req.Nonce == "" {
		t.Fatal("expected a nonce")
	}
}
