package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/haggle/haggle-api/internal/domain/ledger"
)

func newTestService() *ledger.Service {
	return ledger.NewService(ledger.NewMemoryStore())
}

func mustMint(t *testing.T, svc *ledger.Service, identity string, amount int64, ref string) {
	t.Helper()
	if err := svc.Mint(context.Background(), identity, amount, ref); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
}

func TestDeductConcurrent(t *testing.T) {
	svc := newTestService()
	mustMint(t, svc, "0xabc", 50, "seed-1")

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var totalDeducted int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Deduct(context.Background(), "0xabc", 10)
			if err != nil {
				t.Errorf("deduct failed: %v", err)
				return
			}
			mu.Lock()
			totalDeducted += res.Deducted
			mu.Unlock()
		}()
	}
	wg.Wait()

	if totalDeducted != 50 {
		t.Fatalf("expected 50 cents deducted in total, got %d", totalDeducted)
	}

	balance, err := svc.GetBalance(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

func TestDeductPartial(t *testing.T) {
	svc := newTestService()
	mustMint(t, svc, "0xabc", 60, "seed-2")

	res, err := svc.Deduct(context.Background(), "0xabc", 100)
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	if res.Deducted != 60 {
		t.Fatalf("expected 60 deducted, got %d", res.Deducted)
	}
	if res.Remaining != 40 {
		t.Fatalf("expected 40 remaining, got %d", res.Remaining)
	}
	if res.TransactionID == "" {
		t.Fatal("expected a usage transaction id")
	}

	balance, _ := svc.GetBalance(context.Background(), "0xabc")
	if balance != 0 {
		t.Fatalf("expected balance 0 after partial deduction, got %d", balance)
	}
}

func TestDeductZeroBalance(t *testing.T) {
	svc := newTestService()

	res, err := svc.Deduct(context.Background(), "0xempty", 100)
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	if res.Deducted != 0 || res.Remaining != 100 {
		t.Fatalf("expected zero-effect deduction, got deducted=%d remaining=%d", res.Deducted, res.Remaining)
	}
	if res.TransactionID != "" {
		t.Fatal("zero-effect deduction must not create a transaction")
	}
}

func TestDeductNonPositiveAmount(t *testing.T) {
	svc := newTestService()
	mustMint(t, svc, "0xabc", 100, "seed-3")

	res, err := svc.Deduct(context.Background(), "0xabc", 0)
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	if res.Deducted != 0 || res.Remaining != 0 {
		t.Fatalf("expected no-op for zero amount, got %+v", res)
	}

	balance, _ := svc.GetBalance(context.Background(), "0xabc")
	if balance != 100 {
		t.Fatalf("expected balance untouched, got %d", balance)
	}
}

func TestMintIdempotent(t *testing.T) {
	svc := newTestService()

	mustMint(t, svc, "0xabc", 500, "tx-1")
	mustMint(t, svc, "0xabc", 500, "tx-1")

	balance, err := svc.GetBalance(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance != 500 {
		t.Fatalf("expected balance 500 after duplicate mint, got %d", balance)
	}

	history, err := svc.History(context.Background(), "0xabc", 10, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one purchase row, got %d", len(history))
	}
}

func TestMintValidation(t *testing.T) {
	svc := newTestService()

	if err := svc.Mint(context.Background(), "", 100, "tx-1"); !errors.Is(err, ledger.ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	if err := svc.Mint(context.Background(), "0xabc", 0, "tx-1"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := svc.Mint(context.Background(), "0xabc", 100, ""); !errors.Is(err, ledger.ErrExternalRefRequired) {
		t.Fatalf("expected ErrExternalRefRequired, got %v", err)
	}
}

func TestRefundOnce(t *testing.T) {
	svc := newTestService()
	mustMint(t, svc, "0xabc", 100, "seed-4")

	res, err := svc.Deduct(context.Background(), "0xabc", 60)
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}

	refunded, err := svc.Refund(context.Background(), res.TransactionID)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !refunded {
		t.Fatal("expected first refund to apply")
	}

	balance, _ := svc.GetBalance(context.Background(), "0xabc")
	if balance != 100 {
		t.Fatalf("expected balance restored to 100, got %d", balance)
	}

	refunded, err = svc.Refund(context.Background(), res.TransactionID)
	if err != nil {
		t.Fatalf("duplicate refund errored: %v", err)
	}
	if refunded {
		t.Fatal("expected duplicate refund to be a no-op")
	}

	balance, _ = svc.GetBalance(context.Background(), "0xabc")
	if balance != 100 {
		t.Fatalf("expected balance unchanged after duplicate refund, got %d", balance)
	}
}

func TestRefundUnknownTransaction(t *testing.T) {
	svc := newTestService()

	refunded, err := svc.Refund(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("refund errored: %v", err)
	}
	if refunded {
		t.Fatal("expected refund of unknown transaction to be a no-op")
	}
}

func TestRefundOnlyUsageRows(t *testing.T) {
	svc := newTestService()
	mustMint(t, svc, "0xabc", 100, "seed-5")

	history, err := svc.History(context.Background(), "0xabc", 10, 0)
	if err != nil || len(history) != 1 {
		t.Fatalf("history failed: %v (%d rows)", err, len(history))
	}

	refunded, err := svc.Refund(context.Background(), history[0].ID)
	if err != nil {
		t.Fatalf("refund errored: %v", err)
	}
	if refunded {
		t.Fatal("purchase rows must not be refundable")
	}
}

func TestRecordExternalIdempotent(t *testing.T) {
	svc := newTestService()

	id1, err := svc.RecordExternal(context.Background(), "0xabc", 40, "0xhash1")
	if err != nil {
		t.Fatalf("record external failed: %v", err)
	}
	id2, err := svc.RecordExternal(context.Background(), "0xabc", 40, "0xhash1")
	if err != nil {
		t.Fatalf("replayed record external failed: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected replay to return the original row id, got %s and %s", id1, id2)
	}

	// External settlements never touch the credit balance.
	balance, _ := svc.GetBalance(context.Background(), "0xabc")
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

func TestLatestUsageWindow(t *testing.T) {
	svc := newTestService()
	mustMint(t, svc, "0xabc", 100, "seed-6")

	if _, err := svc.Deduct(context.Background(), "0xabc", 30); err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	res, err := svc.Deduct(context.Background(), "0xabc", 20)
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}

	usage, err := svc.LatestUsage(context.Background(), "0xabc", 10*time.Minute)
	if err != nil {
		t.Fatalf("latest usage failed: %v", err)
	}
	if usage == nil {
		t.Fatal("expected a usage row inside the window")
	}
	if usage.ID != res.TransactionID {
		t.Fatalf("expected the most recent usage row, got %s", usage.ID)
	}
	if usage.AmountCents != -20 {
		t.Fatalf("expected amount -20, got %d", usage.AmountCents)
	}
}

func TestLatestUsageSkipsRefundedRows(t *testing.T) {
	svc := newTestService()
	mustMint(t, svc, "0xabc", 100, "seed-7")

	first, err := svc.Deduct(context.Background(), "0xabc", 30)
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	second, err := svc.Deduct(context.Background(), "0xabc", 20)
	if err != nil {
		t.Fatalf("deduct failed: %v", err)
	}
	if _, err := svc.Refund(context.Background(), second.TransactionID); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	// The refunded row was already returned to the caller, so recovery must
	// fall through to the older, still-unrefunded deduction.
	usage, err := svc.LatestUsage(context.Background(), "0xabc", 10*time.Minute)
	if err != nil {
		t.Fatalf("latest usage failed: %v", err)
	}
	if usage == nil || usage.ID != first.TransactionID {
		t.Fatalf("expected the unrefunded usage row %s, got %+v", first.TransactionID, usage)
	}

	if _, err := svc.Refund(context.Background(), first.TransactionID); err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	usage, err = svc.LatestUsage(context.Background(), "0xabc", 10*time.Minute)
	if err != nil {
		t.Fatalf("latest usage failed: %v", err)
	}
	if usage != nil {
		t.Fatalf("expected no recoverable usage once everything is refunded, got %+v", usage)
	}
}

func TestHistoryOrderAndPaging(t *testing.T) {
	svc := newTestService()

	for i := 0; i < 5; i++ {
		mustMint(t, svc, "0xabc", 10, fmt.Sprintf("tx-%d", i))
	}

	page, err := svc.History(context.Background(), "0xabc", 2, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	if page[0].ExternalTxRef == nil || *page[0].ExternalTxRef != "tx-4" {
		t.Fatalf("expected newest row first, got %+v", page[0])
	}

	rest, err := svc.History(context.Background(), "0xabc", 10, 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected 3 remaining rows, got %d", len(rest))
	}
}
