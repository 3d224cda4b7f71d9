package walletgo

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Repository is the transactional datastore behind the transfer engine:
// the account store and the append-only ledger, plus the one operation
// that must span both atomically.
type Repository interface {
	CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error)
	GetAccount(ctx context.Context, id snowflake.ID) (*Account, error)
	ListAccounts(ctx context.Context, role Role) ([]Account, error)

	// AdjustBalance applies balance += delta as a single atomic
	// read-modify-write in the store. The non-negative invariant is
	// enforced inside the same operation; a breach returns
	// ErrConstraintViolation and leaves the balance untouched.
	AdjustBalance(ctx context.Context, id snowflake.ID, delta decimal.Decimal) (*Account, error)

	// Transfer debits payer, credits payee, and appends the ledger row
	// as one unit of work. The payer balance is re-read under the
	// store's transaction before the debit; on any failure nothing is
	// applied and no ledger row survives.
	Transfer(ctx context.Context, payerID, payeeID snowflake.ID, amount decimal.Decimal) (*Transaction, error)

	QueryTransactions(ctx context.Context, filter TxnFilter) ([]Transaction, error)
}
