package walletgo_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/walletgo/walletgo"
	"github.com/walletgo/walletgo/mocks"
)

// chanNotifier lets tests synchronize on the post-commit emission.
type chanNotifier struct {
	ch chan walletgo.Transaction
}

func (n *chanNotifier) TransactionCompleted(txn walletgo.Transaction) {
	n.ch <- txn
}

func testNode(t *testing.T) *snowflake.Node {
	node, err := snowflake.NewNode(42)
	require.NoError(t, err)
	return node
}

func TestPay(t *testing.T) {
	t.Run("returns the committed transaction and emits it after commit", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		repo := mocks.NewMockRepository(ctrl)
		log := zerolog.Nop()
		notif := &chanNotifier{ch: make(chan walletgo.Transaction, 1)}
		svc, err := walletgo.NewService(repo, testNode(tt), notif, nil, &log)
		reqrd.NoError(err)

		payer := snowflake.ParseInt64(7241301734201495552)
		payee := snowflake.ParseInt64(7241407009730334720)
		amount := decimal.RequireFromString("40.00")
		committed := &walletgo.Transaction{
			ID:        1,
			PayerID:   payer,
			PayeeID:   payee,
			Amount:    amount,
			Timestamp: time.Now().UTC(),
			Status:    walletgo.TxnCompleted,
		}
		repo.EXPECT().
			Transfer(gomock.Any(), payer, payee, amount).
			Return(committed, nil)

		txn, err := svc.Pay(context.Background(), walletgo.PayReq{
			PayerID: payer,
			PayeeID: payee,
			Amount:  amount,
		})
		reqrd.NoError(err)
		as.Equal(committed, txn)

		select {
		case emitted := <-notif.ch:
			as.Equal(*committed, emitted)
		case <-time.After(time.Second):
			tt.Fatal("no notification emitted")
		}
	})

	t.Run("propagates the repository failure and emits nothing", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		repo := mocks.NewMockRepository(ctrl)
		log := zerolog.Nop()
		notif := &chanNotifier{ch: make(chan walletgo.Transaction, 1)}
		svc, err := walletgo.NewService(repo, testNode(tt), notif, nil, &log)
		reqrd.NoError(err)

		payer := snowflake.ParseInt64(7241301734201495552)
		payee := snowflake.ParseInt64(7241407009730334720)
		amount := decimal.RequireFromString("40.00")
		repo.EXPECT().
			Transfer(gomock.Any(), payer, payee, amount).
			Return(nil, walletgo.ErrInsufficientFunds{ID: payer, Amount: amount})

		txn, err := svc.Pay(context.Background(), walletgo.PayReq{
			PayerID: payer,
			PayeeID: payee,
			Amount:  amount,
		})
		as.Nil(txn)
		as.ErrorAs(err, &walletgo.ErrInsufficientFunds{})

		select {
		case <-notif.ch:
			tt.Fatal("notification emitted for a failed transfer")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestAdminCredit(t *testing.T) {
	t.Run("delegates to the store's atomic adjustment", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		repo := mocks.NewMockRepository(ctrl)
		log := zerolog.Nop()
		svc, err := walletgo.NewService(repo, testNode(tt), nil, nil, &log)
		reqrd.NoError(err)

		acctID := snowflake.ParseInt64(7241301734201495552)
		amount := decimal.RequireFromString("250.00")
		funded := &walletgo.Account{
			ID:      acctID,
			Role:    walletgo.RoleEmployee,
			Balance: amount,
		}
		repo.EXPECT().
			AdjustBalance(gomock.Any(), acctID, amount).
			Return(funded, nil)

		acct, err := svc.AdminCredit(context.Background(), walletgo.CreditReq{
			AcctID: acctID,
			Amount: amount,
		})
		reqrd.NoError(err)
		as.True(acct.Balance.Equal(amount))
	})

	t.Run("surfaces a store constraint violation", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		repo := mocks.NewMockRepository(ctrl)
		log := zerolog.Nop()
		svc, err := walletgo.NewService(repo, testNode(tt), nil, nil, &log)
		reqrd.NoError(err)

		acctID := snowflake.ParseInt64(7241301734201495552)
		debit := decimal.RequireFromString("-300.00")
		repo.EXPECT().
			AdjustBalance(gomock.Any(), acctID, debit).
			Return(nil, walletgo.ErrConstraintViolation{ID: acctID})

		acct, err := svc.AdminCredit(context.Background(), walletgo.CreditReq{
			AcctID: acctID,
			Amount: debit,
		})
		as.Nil(acct)
		as.ErrorAs(err, &walletgo.ErrConstraintViolation{})
	})
}

func TestCreateAccount(t *testing.T) {
	t.Run("assigns an ID when the request carries none", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		repo := mocks.NewMockRepository(ctrl)
		log := zerolog.Nop()
		svc, err := walletgo.NewService(repo, testNode(tt), nil, nil, &log)
		reqrd.NoError(err)

		repo.EXPECT().
			CreateAccount(gomock.Any(), gomock.AssignableToTypeOf(walletgo.CreateAccountReq{})).
			DoAndReturn(func(_ context.Context, req walletgo.CreateAccountReq) (*walletgo.Account, error) {
				as.NotZero(req.AcctID)
				return &walletgo.Account{
					ID:       req.AcctID,
					Username: req.Username,
					Role:     req.Role,
				}, nil
			})

		acct, err := svc.CreateAccount(context.Background(), walletgo.CreateAccountReq{
			Username: "canteen",
			Role:     walletgo.RoleVendor,
		})
		reqrd.NoError(err)
		as.NotZero(acct.ID)
	})
}

func TestBalanceRead(t *testing.T) {
	t.Run("reads through to the store without a cache", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		repo := mocks.NewMockRepository(ctrl)
		log := zerolog.Nop()
		svc, err := walletgo.NewService(repo, testNode(tt), nil, nil, &log)
		reqrd.NoError(err)

		acctID := snowflake.ParseInt64(7241301734201495552)
		bal := decimal.RequireFromString("60.00")
		repo.EXPECT().
			GetAccount(gomock.Any(), acctID).
			Return(&walletgo.Account{ID: acctID, Balance: bal}, nil)

		got, err := svc.Balance(context.Background(), walletgo.BalanceReq{AcctID: acctID})
		reqrd.NoError(err)
		as.True(got.Equal(bal))
	})
}
