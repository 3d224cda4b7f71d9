package walletgo_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletgo/walletgo"
)

var (
	testDBConnStr string
)

func init() {
	testDBConnStr = os.Getenv("TEST_DB_CONN_STR")
}

func TestPostgres(t *testing.T) {
	if testDBConnStr == "" {
		t.Skip("TEST_DB_CONN_STR not set")
	}

	as := assert.New(t)
	reqrd := require.New(t)
	ctx := context.Background()
	log := zerolog.Nop()

	endpt, err := walletgo.NewPostgresEndpoint(testDBConnStr, &log)
	reqrd.NoError(err)
	t.Cleanup(endpt.Close)
	reqrd.NoError(endpt.InitSchema(ctx))
	t.Cleanup(teardownDB(t))

	node, err := snowflake.NewNode(111)
	reqrd.NoError(err)

	mkAccount := func(username string, role walletgo.Role, balance string) *walletgo.Account {
		acct, err := endpt.CreateAccount(ctx, walletgo.CreateAccountReq{
			AcctID:   node.Generate(),
			Username: username,
			Role:     role,
		})
		reqrd.NoError(err)
		bal := decimal.RequireFromString(balance)
		if bal.IsPositive() {
			acct, err = endpt.AdjustBalance(ctx, acct.ID, bal)
			reqrd.NoError(err)
		}
		return acct
	}

	t.Run("InitSchema is idempotent", func(tt *testing.T) {
		assert.New(tt).NoError(endpt.InitSchema(ctx))
	})

	t.Run("Transfer moves funds and appends the ledger row", func(tt *testing.T) {
		emp := mkAccount("pg_emp1", walletgo.RoleEmployee, "100.00")
		ven := mkAccount("pg_ven1", walletgo.RoleVendor, "0.00")

		txn, err := endpt.Transfer(ctx, emp.ID, ven.ID, decimal.RequireFromString("40.00"))
		reqrd.NoError(err)
		as.NotZero(txn.ID)
		as.Equal(walletgo.TxnCompleted, txn.Status)
		as.False(txn.Timestamp.IsZero())

		empAfter, err := endpt.GetAccount(ctx, emp.ID)
		reqrd.NoError(err)
		as.True(empAfter.Balance.Equal(decimal.RequireFromString("60.00")))
		venAfter, err := endpt.GetAccount(ctx, ven.ID)
		reqrd.NoError(err)
		as.True(venAfter.Balance.Equal(decimal.RequireFromString("40.00")))

		txns, err := endpt.QueryTransactions(ctx, walletgo.TxnFilter{PayerID: emp.ID})
		reqrd.NoError(err)
		reqrd.Len(txns, 1)
		as.Equal(txn.ID, txns[0].ID)
	})

	t.Run("Transfer rolls back whole on insufficient balance", func(tt *testing.T) {
		emp := mkAccount("pg_emp2", walletgo.RoleEmployee, "30.00")
		ven := mkAccount("pg_ven2", walletgo.RoleVendor, "0.00")

		txn, err := endpt.Transfer(ctx, emp.ID, ven.ID, decimal.RequireFromString("40.00"))
		as.Nil(txn)
		as.ErrorAs(err, &walletgo.ErrInsufficientFunds{})

		empAfter, err := endpt.GetAccount(ctx, emp.ID)
		reqrd.NoError(err)
		as.True(empAfter.Balance.Equal(decimal.RequireFromString("30.00")))
		txns, err := endpt.QueryTransactions(ctx, walletgo.TxnFilter{PayerID: emp.ID})
		reqrd.NoError(err)
		as.Empty(txns)
	})

	t.Run("AdjustBalance rejects negative-going balances atomically", func(tt *testing.T) {
		emp := mkAccount("pg_emp3", walletgo.RoleEmployee, "10.00")

		_, err := endpt.AdjustBalance(ctx, emp.ID, decimal.RequireFromString("-20.00"))
		as.ErrorAs(err, &walletgo.ErrConstraintViolation{})

		empAfter, err := endpt.GetAccount(ctx, emp.ID)
		reqrd.NoError(err)
		as.True(empAfter.Balance.Equal(decimal.RequireFromString("10.00")))
	})

	t.Run("concurrent transfers against one payer settle exactly once", func(tt *testing.T) {
		const n = 10
		amount := decimal.RequireFromString("5.00")
		emp := mkAccount("pg_emp4", walletgo.RoleEmployee, amount.Mul(decimal.NewFromInt(n)).String())
		ven := mkAccount("pg_ven4", walletgo.RoleVendor, "0.00")

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := endpt.Transfer(ctx, emp.ID, ven.ID, amount)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			reqrd.NoError(err)
		}

		empAfter, err := endpt.GetAccount(ctx, emp.ID)
		reqrd.NoError(err)
		as.True(empAfter.Balance.IsZero())
		txns, err := endpt.QueryTransactions(ctx, walletgo.TxnFilter{PayerID: emp.ID})
		reqrd.NoError(err)
		as.Len(txns, n)
	})

	t.Run("unknown account surfaces ErrNotFound", func(tt *testing.T) {
		_, err := endpt.GetAccount(ctx, node.Generate())
		assert.New(tt).ErrorAs(err, &walletgo.ErrNotFound{})
	})
}

func teardownDB(t *testing.T) func() {
	return func() {
		conn, err := pgx.Connect(context.Background(), testDBConnStr)
		if err != nil {
			t.Logf("DB cleanup connect: %s", err)
			return
		}
		defer conn.Close(context.Background())
		_, err = conn.Exec(context.Background(), `DROP TABLE IF EXISTS transactions, accounts;`)
		if err != nil {
			t.Logf("DB cleanup drop tables: %s", err)
		}
	}
}
