package walletgo_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletgo/walletgo"
)

func TestReporter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	emp := h.account(t, "emp", walletgo.RoleEmployee, "100.00")
	ven := h.account(t, "ven", walletgo.RoleVendor, "0.00")
	for i := 0; i < 2; i++ {
		_, err := h.svc.Pay(ctx, walletgo.PayReq{
			PayerID: emp.ID,
			PayeeID: ven.ID,
			Amount:  decimal.RequireFromString("12.50"),
		})
		require.NoError(t, err)
	}
	rpt := walletgo.NewReporter(h.svc)

	t.Run("CSV carries a header and one record per transaction", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)

		var buf bytes.Buffer
		reqrd.NoError(rpt.CSVStatement(ctx, &buf, walletgo.TxnFilter{}))

		records, err := csv.NewReader(&buf).ReadAll()
		reqrd.NoError(err)
		reqrd.Len(records, 3)
		as.Equal([]string{"id", "payer", "payee", "amount", "timestamp", "status"}, records[0])
		as.Equal("12.50", records[1][3])
		as.Equal("completed", records[1][5])
	})

	t.Run("PDF renders a non-empty document", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)

		var buf bytes.Buffer
		reqrd.NoError(rpt.PDFStatement(ctx, &buf, walletgo.TxnFilter{}))
		as.True(bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	})

	t.Run("rendering never mutates the ledger", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)

		before, err := h.svc.Transactions(ctx, walletgo.TxnFilter{})
		reqrd.NoError(err)
		var buf bytes.Buffer
		reqrd.NoError(rpt.CSVStatement(ctx, &buf, walletgo.TxnFilter{}))
		after, err := h.svc.Transactions(ctx, walletgo.TxnFilter{})
		reqrd.NoError(err)
		as.Equal(before, after)
	})
}
