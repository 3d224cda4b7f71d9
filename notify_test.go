package walletgo_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletgo/walletgo"
)

func TestWebhookNotifier(t *testing.T) {
	t.Run("delivers the committed transaction as JSON", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)

		received := make(chan walletgo.Transaction, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var txn walletgo.Transaction
			reqrd.NoError(json.NewDecoder(r.Body).Decode(&txn))
			received <- txn
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		log := zerolog.Nop()
		notif := walletgo.NewWebhookNotifier(srv.URL, &log)
		committed := walletgo.Transaction{
			ID:      9,
			PayerID: snowflake.ParseInt64(1834563581361305763),
			PayeeID: snowflake.ParseInt64(1834563581361305764),
			Amount:  decimal.RequireFromString("40.00"),
			Status:  walletgo.TxnCompleted,
		}
		notif.TransactionCompleted(committed)

		got := <-received
		as.Equal(committed.ID, got.ID)
		as.True(committed.Amount.Equal(got.Amount))
	})

	t.Run("a failing endpoint does not panic or propagate", func(tt *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		log := zerolog.Nop()
		notif := walletgo.NewWebhookNotifier(srv.URL, &log)
		notif.TransactionCompleted(walletgo.Transaction{ID: 10})
	})
}
