package walletgo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// MemoryEndpoint is a mutex-guarded Repository with the same semantics
// as the postgres endpoint. It backs the property tests and local runs
// without a database; the single lock provides the serialization the
// real store gets from transaction isolation.
type MemoryEndpoint struct {
	mu       sync.Mutex
	accounts map[snowflake.ID]*Account
	ledger   []Transaction
	nextTxn  int64
}

var (
	_ Repository = (*MemoryEndpoint)(nil)
)

func NewMemoryEndpoint() *MemoryEndpoint {
	return &MemoryEndpoint{
		accounts: make(map[snowflake.ID]*Account),
		nextTxn:  1,
	}
}

func (m *MemoryEndpoint) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[req.AcctID]; ok {
		return nil, ErrBadRequest{Fields: map[string]string{"id": "already exists"}}
	}
	acct := &Account{
		ID:       req.AcctID,
		Username: req.Username,
		Role:     req.Role,
		Balance:  decimal.Zero,
	}
	m.accounts[req.AcctID] = acct

	cp := *acct
	return &cp, nil
}

func (m *MemoryEndpoint) GetAccount(ctx context.Context, id snowflake.ID) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound{ID: id.Int64()}
	}
	cp := *acct
	return &cp, nil
}

func (m *MemoryEndpoint) ListAccounts(ctx context.Context, role Role) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var accts []Account
	for _, acct := range m.accounts {
		if role != "" && acct.Role != role {
			continue
		}
		accts = append(accts, *acct)
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].ID < accts[j].ID })
	return accts, nil
}

func (m *MemoryEndpoint) AdjustBalance(ctx context.Context, id snowflake.ID, delta decimal.Decimal) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound{ID: id.Int64()}
	}
	next := acct.Balance.Add(delta)
	if next.IsNegative() {
		return nil, ErrConstraintViolation{ID: id}
	}
	acct.Balance = next

	cp := *acct
	return &cp, nil
}

func (m *MemoryEndpoint) Transfer(ctx context.Context, payerID, payeeID snowflake.ID, amount decimal.Decimal) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payer, ok := m.accounts[payerID]
	if !ok {
		return nil, ErrNotFound{ID: payerID.Int64()}
	}
	payee, ok := m.accounts[payeeID]
	if !ok {
		return nil, ErrNotFound{ID: payeeID.Int64()}
	}
	// Balance at transfer time, under the lock; the validation
	// middleware's earlier read may be stale by now.
	if payer.Balance.LessThan(amount) {
		return nil, ErrInsufficientFunds{ID: payerID, Amount: amount}
	}

	payer.Balance = payer.Balance.Sub(amount)
	payee.Balance = payee.Balance.Add(amount)

	txn := Transaction{
		ID:        m.nextTxn,
		PayerID:   payerID,
		PayeeID:   payeeID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
		Status:    TxnCompleted,
	}
	m.nextTxn++
	m.ledger = append(m.ledger, txn)

	return &txn, nil
}

func (m *MemoryEndpoint) QueryTransactions(ctx context.Context, filter TxnFilter) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var txns []Transaction
	for _, txn := range m.ledger {
		if filter.StartTime != nil && txn.Timestamp.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && txn.Timestamp.After(*filter.EndTime) {
			continue
		}
		if filter.PayerID != 0 && txn.PayerID != filter.PayerID {
			continue
		}
		if filter.PayeeID != 0 && txn.PayeeID != filter.PayeeID {
			continue
		}
		txns = append(txns, txn)
	}
	// Newest first; ids break timestamp ties since commits can land
	// within the clock's resolution.
	sort.Slice(txns, func(i, j int) bool {
		if txns[i].Timestamp.Equal(txns[j].Timestamp) {
			return txns[i].ID > txns[j].ID
		}
		return txns[i].Timestamp.After(txns[j].Timestamp)
	})
	if filter.Limit > 0 && len(txns) > filter.Limit {
		txns = txns[:filter.Limit]
	}
	return txns, nil
}
