package settlement_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haggle/haggle-api/internal/domain/settlement"
	"github.com/haggle/haggle-api/internal/pkg/x402"
)

func testRailConfig() x402.RailConfig {
	return x402.RailConfig{
		Network:       "base-sepolia",
		PayTo:         "0xPayee",
		Asset:         "0xusdc",
		AssetDecimals: 6,
	}
}

func encodePayment(t *testing.T, from, value string) string {
	t.Helper()
	header, err := x402.EncodePayment(&x402.PaymentPayload{
		Version: x402.ProtocolVersion,
		Scheme:  x402.SchemeExact,
		Network: "base-sepolia",
		Payload: x402.ExactPayload{
			From:      from,
			To:        "0xPayee",
			Value:     value,
			Nonce:     "n-1",
			Signature: "0xsig",
		},
	})
	if err != nil {
		t.Fatalf("encode payment failed: %v", err)
	}
	return header
}

// newFacilitator serves /verify and /settle with canned responses.
func newFacilitator(t *testing.T, verify x402.VerifyResponse, settle x402.SettleResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			json.NewEncoder(w).Encode(verify)
		case "/settle":
			json.NewEncoder(w).Encode(settle)
		default:
			t.Errorf("unexpected facilitator path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestRailSettleSuccess(t *testing.T) {
	server := newFacilitator(t,
		x402.VerifyResponse{IsValid: true, Payer: "0xSender"},
		x402.SettleResponse{
			Success: true,
			TxHash:  "0xhash1",
			Network: "base-sepolia",
			Transfer: &x402.TransferEvent{
				Topic: x402.TransferEventTopic,
				From:  "0xSender",
				To:    "0xPayee",
				Value: "400000",
			},
		})
	defer server.Close()

	rail := settlement.NewX402Rail(x402.NewClient(x402.Config{BaseURL: server.URL}), testRailConfig())
	header := encodePayment(t, "0xSender", "400000")

	receipt, err := rail.Settle(context.Background(), header, 40, "0xsender")
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if receipt.TxRef != "0xhash1" {
		t.Fatalf("expected tx hash on receipt, got %s", receipt.TxRef)
	}
	if receipt.AmountCents != 40 {
		t.Fatalf("expected 40 cents, got %d", receipt.AmountCents)
	}
}

func TestRailSettleRejectsSenderMismatch(t *testing.T) {
	rail := settlement.NewX402Rail(x402.NewClient(x402.Config{BaseURL: "http://unused"}), testRailConfig())
	header := encodePayment(t, "0xSomeoneElse", "400000")

	_, err := rail.Settle(context.Background(), header, 40, "0xsender")
	if !errors.Is(err, settlement.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestRailSettleRejectsUnderpayment(t *testing.T) {
	rail := settlement.NewX402Rail(x402.NewClient(x402.Config{BaseURL: "http://unused"}), testRailConfig())
	header := encodePayment(t, "0xSender", "100000") // 10 cents, residual is 40

	_, err := rail.Settle(context.Background(), header, 40, "0xsender")
	if !errors.Is(err, settlement.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestRailSettleRejectsInvalidVerdict(t *testing.T) {
	server := newFacilitator(t,
		x402.VerifyResponse{IsValid: false, InvalidReason: "bad signature"},
		x402.SettleResponse{})
	defer server.Close()

	rail := settlement.NewX402Rail(x402.NewClient(x402.Config{BaseURL: server.URL}), testRailConfig())
	header := encodePayment(t, "0xSender", "400000")

	_, err := rail.Settle(context.Background(), header, 40, "0xsender")
	if !errors.Is(err, settlement.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestRailSettleRejectsReceiptWithoutTransfer(t *testing.T) {
	server := newFacilitator(t,
		x402.VerifyResponse{IsValid: true},
		x402.SettleResponse{Success: true, TxHash: "0xhash1"})
	defer server.Close()

	rail := settlement.NewX402Rail(x402.NewClient(x402.Config{BaseURL: server.URL}), testRailConfig())
	header := encodePayment(t, "0xSender", "400000")

	_, err := rail.Settle(context.Background(), header, 40, "0xsender")
	if !errors.Is(err, settlement.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestRailSettleTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	rail := settlement.NewX402Rail(x402.NewClient(x402.Config{BaseURL: server.URL}), testRailConfig())
	header := encodePayment(t, "0xSender", "400000")

	_, err := rail.Settle(context.Background(), header, 40, "0xsender")
	if !errors.Is(err, settlement.ErrRailUnavailable) {
		t.Fatalf("expected ErrRailUnavailable, got %v", err)
	}
}

func TestRailSettleAcceptsOverpayment(t *testing.T) {
	server := newFacilitator(t,
		x402.VerifyResponse{IsValid: true},
		x402.SettleResponse{
			Success: true,
			TxHash:  "0xhash2",
			Transfer: &x402.TransferEvent{
				Topic: x402.TransferEventTopic,
				From:  "0xSender",
				To:    "0xPayee",
				Value: "500000", // 50 cents against a 40 cent residual
			},
		})
	defer server.Close()

	rail := settlement.NewX402Rail(x402.NewClient(x402.Config{BaseURL: server.URL}), testRailConfig())
	header := encodePayment(t, "0xSender", "500000")

	receipt, err := rail.Settle(context.Background(), header, 40, "0xsender")
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	// Only the residual is recorded, whatever was transferred on top.
	if receipt.AmountCents != 40 {
		t.Fatalf("expected recorded amount 40, got %d", receipt.AmountCents)
	}
}
