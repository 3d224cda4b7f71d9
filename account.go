package walletgo

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Role determines which side of a transfer an account may sit on.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleVendor   Role = "vendor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleVendor:
		return true
	}
	return false
}

type Account struct {
	ID       snowflake.ID    `json:"id"`
	Username string          `json:"username"`
	Role     Role            `json:"role"`
	Balance  decimal.Decimal `json:"balance"`
}

type TxnStatus string

const (
	// TxnCompleted is the only status the engine ever persists; failed
	// attempts are rolled back whole and leave no ledger row.
	TxnCompleted TxnStatus = "completed"
	TxnFailed    TxnStatus = "failed"
)

// Transaction is a committed ledger entry. ID and Timestamp are assigned
// by the store at commit; rows are never updated or deleted.
type Transaction struct {
	ID        int64           `json:"id"`
	PayerID   snowflake.ID    `json:"payerId"`
	PayeeID   snowflake.ID    `json:"payeeId"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	Status    TxnStatus       `json:"status"`
}

// TxnFilter narrows a ledger query; zero-valued fields are ignored and
// provided fields combine by conjunction. Results come back ordered by
// timestamp descending.
type TxnFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	PayerID   snowflake.ID
	PayeeID   snowflake.ID
	Limit     int
}

// amountPrecision is the fixed scale for wallet money.
const amountPrecision = 2

// validAmount reports whether d is representable at 2 decimal places.
func validAmount(d decimal.Decimal) bool {
	return d.Equal(d.Round(amountPrecision))
}
