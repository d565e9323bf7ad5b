package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store. Used by tests and as a
// development fallback when no database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	txns     []Transaction
	byID     map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		byID:     make(map[string]int),
	}
}

func (m *MemoryStore) GetAccount(ctx context.Context, identity string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[identity]
	if !ok {
		return nil, nil
	}
	cp := *acct
	return &cp, nil
}

func (m *MemoryStore) DeductBalance(ctx context.Context, identity string, amount int64, txn *Transaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[identity]
	if !ok || acct.Balance < amount {
		return false, nil
	}

	acct.Balance -= amount
	acct.LifetimeUsed += amount
	acct.UpdatedAt = time.Now()
	m.append(txn)
	return true, nil
}

func (m *MemoryStore) CreditBalance(ctx context.Context, identity string, amount int64, purchased bool, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.ExternalTxRef != nil {
		if m.findByExternalRefLocked(*txn.ExternalTxRef) != nil {
			return ErrDuplicateExternalRef
		}
	}
	if txn.RefundOf != nil {
		if m.hasRefundForLocked(*txn.RefundOf) {
			return ErrDuplicateRefund
		}
	}

	acct, ok := m.accounts[identity]
	if !ok {
		acct = &Account{Identity: identity}
		m.accounts[identity] = acct
	}

	acct.Balance += amount
	if purchased {
		acct.LifetimePurchased += amount
	} else {
		acct.LifetimeUsed -= amount
	}
	acct.UpdatedAt = time.Now()
	m.append(txn)
	return nil
}

func (m *MemoryStore) RecordExternal(ctx context.Context, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.ExternalTxRef != nil {
		if m.findByExternalRefLocked(*txn.ExternalTxRef) != nil {
			return ErrDuplicateExternalRef
		}
	}
	m.append(txn)
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := m.txns[idx]
	return &cp, nil
}

func (m *MemoryStore) FindByExternalRef(ctx context.Context, ref string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t := m.findByExternalRefLocked(ref); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) HasRefundFor(ctx context.Context, originalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasRefundForLocked(originalID), nil
}

func (m *MemoryStore) LatestUsage(ctx context.Context, identity string, since time.Time) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.txns) - 1; i >= 0; i-- {
		t := m.txns[i]
		if t.Identity != identity || t.Kind != KindUsage || t.Status != StatusConfirmed {
			continue
		}
		if t.CreatedAt.Before(since) {
			return nil, nil
		}
		// A refunded deduction was already returned to the caller and must
		// not be recovered as paid credit again.
		if m.hasRefundForLocked(t.ID) {
			continue
		}
		cp := t
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, identity string, limit, offset int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Transaction, 0, limit)
	skipped := 0
	for i := len(m.txns) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txns[i].Identity != identity {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, m.txns[i])
	}
	return out, nil
}

func (m *MemoryStore) append(txn *Transaction) {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	m.byID[txn.ID] = len(m.txns)
	m.txns = append(m.txns, *txn)
}

func (m *MemoryStore) findByExternalRefLocked(ref string) *Transaction {
	for i := range m.txns {
		t := &m.txns[i]
		if t.Status == StatusConfirmed && t.ExternalTxRef != nil && *t.ExternalTxRef == ref {
			return t
		}
	}
	return nil
}

func (m *MemoryStore) hasRefundForLocked(originalID string) bool {
	for i := range m.txns {
		t := &m.txns[i]
		if t.Kind == KindRefund && t.RefundOf != nil && *t.RefundOf == originalID {
			return true
		}
	}
	return false
}
