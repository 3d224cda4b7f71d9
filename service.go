package walletgo

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type PayReq struct {
	PayerID snowflake.ID
	PayeeID snowflake.ID
	Amount  decimal.Decimal `json:"amount"`
}

// CreditReq is an admin top-up. It bypasses transfer validation but the
// store still rejects a negative-going balance.
type CreditReq struct {
	AcctID snowflake.ID
	Amount decimal.Decimal `json:"amount"`
}

type CreateAccountReq struct {
	AcctID   snowflake.ID
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type BalanceReq struct {
	AcctID snowflake.ID
}

type Service interface {
	Pay(ctx context.Context, req PayReq) (*Transaction, error)
	AdminCredit(ctx context.Context, req CreditReq) (*Account, error)
	CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error)
	ListAccounts(ctx context.Context, role Role) ([]Account, error)
	Balance(ctx context.Context, req BalanceReq) (*decimal.Decimal, error)
	Transactions(ctx context.Context, filter TxnFilter) ([]Transaction, error)
}

type serviceImpl struct {
	repo  Repository
	node  *snowflake.Node
	notif Notifier
	cache *BalanceCache
	log   *zerolog.Logger
}

// NewService builds the core engine. notif and cache may be nil; they
// degrade to no notification and uncached reads respectively.
func NewService(repo Repository, node *snowflake.Node, notif Notifier, cache *BalanceCache, log *zerolog.Logger) (*serviceImpl, error) {
	if notif == nil {
		notif = NopNotifier{}
	}
	return &serviceImpl{
		repo:  repo,
		node:  node,
		notif: notif,
		cache: cache,
		log:   log,
	}, nil
}

// Pay runs the committed half of a payment. Preconditions have already
// been checked by the validation middleware; the balance is re-checked
// inside the repository's transaction, so a race between validation and
// execution surfaces here as ErrInsufficientFunds rather than an
// overdraft.
func (s *serviceImpl) Pay(ctx context.Context, req PayReq) (*Transaction, error) {
	txn, err := s.repo.Transfer(ctx, req.PayerID, req.PayeeID, req.Amount)
	if err != nil {
		return nil, err
	}

	// Post-commit only. Best effort, never blocks the caller.
	go s.notif.TransactionCompleted(*txn)
	if s.cache != nil {
		s.cache.Invalidate(ctx, req.PayerID, req.PayeeID)
	}

	s.log.Info().
		Int64("txn", txn.ID).
		Str("payer", req.PayerID.String()).
		Str("payee", req.PayeeID.String()).
		Str("amount", req.Amount.String()).
		Msg("transfer committed")
	return txn, nil
}

func (s *serviceImpl) AdminCredit(ctx context.Context, req CreditReq) (*Account, error) {
	acct, err := s.repo.AdjustBalance(ctx, req.AcctID, req.Amount)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, req.AcctID)
	}
	s.log.Info().
		Str("account", req.AcctID.String()).
		Str("amount", req.Amount.String()).
		Msg("admin credit applied")
	return acct, nil
}

func (s *serviceImpl) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	if req.AcctID == 0 {
		req.AcctID = s.node.Generate()
	}
	return s.repo.CreateAccount(ctx, req)
}

// ListAccounts backs the vendor picker on payment forms.
func (s *serviceImpl) ListAccounts(ctx context.Context, role Role) ([]Account, error) {
	return s.repo.ListAccounts(ctx, role)
}

// Balance is a display read; it may lag the committed state when served
// from cache and is not part of any transfer's serialization.
func (s *serviceImpl) Balance(ctx context.Context, req BalanceReq) (*decimal.Decimal, error) {
	if s.cache != nil {
		if bal, ok := s.cache.Get(ctx, req.AcctID); ok {
			return &bal, nil
		}
	}
	acct, err := s.repo.GetAccount(ctx, req.AcctID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, req.AcctID, acct.Balance)
	}
	return &acct.Balance, nil
}

func (s *serviceImpl) Transactions(ctx context.Context, filter TxnFilter) ([]Transaction, error) {
	return s.repo.QueryTransactions(ctx, filter)
}
