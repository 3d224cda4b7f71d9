package walletgo

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
)

type Middleware func(Service) Service

// validationMiddleware enforces every payment precondition before any
// mutation is attempted. The balance check here is advisory; the store
// re-checks it inside the transfer transaction, which is what actually
// prevents two racing payments from overdrawing an account.
type validationMiddleware struct {
	next      Service
	repo      Repository
	payerRole Role
	payeeRole Role
}

var (
	_ Service = (*validationMiddleware)(nil)
)

// NewValidationMiddleware wires precondition checks in front of a
// Service. payerRole/payeeRole default to employee/vendor when empty.
func NewValidationMiddleware(repo Repository, payerRole, payeeRole Role) Middleware {
	if payerRole == "" {
		payerRole = RoleEmployee
	}
	if payeeRole == "" {
		payeeRole = RoleVendor
	}
	return func(svc Service) Service {
		return &validationMiddleware{
			next:      svc,
			repo:      repo,
			payerRole: payerRole,
			payeeRole: payeeRole,
		}
	}
}

func (v *validationMiddleware) Pay(ctx context.Context, req PayReq) (*Transaction, error) {
	if !req.Amount.IsPositive() || !validAmount(req.Amount) {
		return nil, ErrInvalidAmount{Amount: req.Amount}
	}
	if req.PayerID == req.PayeeID {
		return nil, ErrInvalidParties{PayerID: req.PayerID, PayeeID: req.PayeeID}
	}

	payee, err := v.repo.GetAccount(ctx, req.PayeeID)
	if err != nil {
		if IsTransient(err) {
			return nil, err
		}
		return nil, ErrInvalidPayee{ID: req.PayeeID}
	}
	if payee.Role != v.payeeRole {
		return nil, ErrInvalidPayee{ID: req.PayeeID, Role: payee.Role}
	}

	payer, err := v.repo.GetAccount(ctx, req.PayerID)
	if err != nil {
		if IsTransient(err) {
			return nil, err
		}
		return nil, ErrInvalidPayer{ID: req.PayerID}
	}
	if payer.Role != v.payerRole {
		return nil, ErrInvalidPayer{ID: req.PayerID, Role: payer.Role}
	}
	if payer.Balance.LessThan(req.Amount) {
		return nil, ErrInsufficientFunds{ID: req.PayerID, Amount: req.Amount}
	}

	return v.next.Pay(ctx, req)
}

func (v *validationMiddleware) AdminCredit(ctx context.Context, req CreditReq) (*Account, error) {
	if req.Amount.IsZero() || !validAmount(req.Amount) {
		return nil, ErrInvalidAmount{Amount: req.Amount}
	}
	return v.next.AdminCredit(ctx, req)
}

func (v *validationMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	fields := map[string]string{}
	if req.Username == "" {
		fields["username"] = "missing"
	}
	if !req.Role.Valid() {
		fields["role"] = "must be one of admin, employee, vendor"
	}
	if len(fields) > 0 {
		return nil, ErrBadRequest{Fields: fields}
	}
	return v.next.CreateAccount(ctx, req)
}

func (v *validationMiddleware) ListAccounts(ctx context.Context, role Role) ([]Account, error) {
	return v.next.ListAccounts(ctx, role)
}

func (v *validationMiddleware) Balance(ctx context.Context, req BalanceReq) (*decimal.Decimal, error) {
	return v.next.Balance(ctx, req)
}

func (v *validationMiddleware) Transactions(ctx context.Context, filter TxnFilter) ([]Transaction, error) {
	if filter.StartTime != nil && filter.EndTime != nil && filter.EndTime.Before(*filter.StartTime) {
		return nil, ErrBadRequest{Fields: map[string]string{"endTime": "before startTime"}}
	}
	return v.next.Transactions(ctx, filter)
}

//
// Rate limiting middlewares
//

// limitMiddleware bounds the number of in-flight requests per operation
// with weighted semaphores. Acquisition respects the caller's context so
// a saturated operation fails fast instead of queueing forever.
type limitMiddleware struct {
	next   Service
	limits *ServiceLimits
}

var (
	_ Service = (*limitMiddleware)(nil)
)

type ServiceLimits struct {
	Pay          *semaphore.Weighted
	AdminCredit  *semaphore.Weighted
	Transactions *semaphore.Weighted
}

func NewLimitMiddleware(limits *ServiceLimits) Middleware {
	return func(next Service) Service {
		return &limitMiddleware{
			next:   next,
			limits: limits,
		}
	}
}

func (l *limitMiddleware) Pay(ctx context.Context, req PayReq) (*Transaction, error) {
	if err := l.limits.Pay.Acquire(ctx, 1); err != nil {
		return nil, ErrTransient{Op: "pay limit", Err: err}
	}
	defer l.limits.Pay.Release(1)
	return l.next.Pay(ctx, req)
}

func (l *limitMiddleware) AdminCredit(ctx context.Context, req CreditReq) (*Account, error) {
	if err := l.limits.AdminCredit.Acquire(ctx, 1); err != nil {
		return nil, ErrTransient{Op: "credit limit", Err: err}
	}
	defer l.limits.AdminCredit.Release(1)
	return l.next.AdminCredit(ctx, req)
}

func (l *limitMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	return l.next.CreateAccount(ctx, req)
}

func (l *limitMiddleware) ListAccounts(ctx context.Context, role Role) ([]Account, error) {
	return l.next.ListAccounts(ctx, role)
}

func (l *limitMiddleware) Balance(ctx context.Context, req BalanceReq) (*decimal.Decimal, error) {
	return l.next.Balance(ctx, req)
}

func (l *limitMiddleware) Transactions(ctx context.Context, filter TxnFilter) ([]Transaction, error) {
	if err := l.limits.Transactions.Acquire(ctx, 1); err != nil {
		return nil, ErrTransient{Op: "query limit", Err: err}
	}
	defer l.limits.Transactions.Release(1)
	return l.next.Transactions(ctx, filter)
}

type ServiceBreaker struct {
	Pay          *gobreaker.TwoStepCircuitBreaker[*Transaction]
	AdminCredit  *gobreaker.TwoStepCircuitBreaker[*Account]
	Transactions *gobreaker.TwoStepCircuitBreaker[[]Transaction]
}

// circuitBreakMiddleware sheds load when the store is unhealthy. Only
// transient failures count against the breaker; business-rule rejections
// are a healthy outcome and must not trip it.
type circuitBreakMiddleware struct {
	next  Service
	brkrs *ServiceBreaker
}

var (
	_ Service = (*circuitBreakMiddleware)(nil)
)

func NewCircuitBreakMiddleware(brkrs *ServiceBreaker) Middleware {
	return func(next Service) Service {
		return &circuitBreakMiddleware{
			next:  next,
			brkrs: brkrs,
		}
	}
}

func (c *circuitBreakMiddleware) Pay(ctx context.Context, req PayReq) (*Transaction, error) {
	done, err := c.brkrs.Pay.Allow()
	if err != nil {
		return nil, ErrTransient{Op: "pay", Err: err}
	}
	txn, err := c.next.Pay(ctx, req)
	done(err == nil || !IsTransient(err))
	return txn, err
}

func (c *circuitBreakMiddleware) AdminCredit(ctx context.Context, req CreditReq) (*Account, error) {
	done, err := c.brkrs.AdminCredit.Allow()
	if err != nil {
		return nil, ErrTransient{Op: "credit", Err: err}
	}
	acct, err := c.next.AdminCredit(ctx, req)
	done(err == nil || !IsTransient(err))
	return acct, err
}

func (c *circuitBreakMiddleware) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	return c.next.CreateAccount(ctx, req)
}

func (c *circuitBreakMiddleware) ListAccounts(ctx context.Context, role Role) ([]Account, error) {
	return c.next.ListAccounts(ctx, role)
}

func (c *circuitBreakMiddleware) Balance(ctx context.Context, req BalanceReq) (*decimal.Decimal, error) {
	return c.next.Balance(ctx, req)
}

func (c *circuitBreakMiddleware) Transactions(ctx context.Context, filter TxnFilter) ([]Transaction, error) {
	done, err := c.brkrs.Transactions.Allow()
	if err != nil {
		return nil, ErrTransient{Op: "query", Err: err}
	}
	txns, err := c.next.Transactions(ctx, filter)
	done(err == nil || !IsTransient(err))
	return txns, err
}

// Chain applies middlewares right to left so the first listed sits
// outermost, the way the HTTP boundary sees them.
func Chain(svc Service, mws ...Middleware) Service {
	for i := len(mws) - 1; i >= 0; i-- {
		svc = mws[i](svc)
	}
	return svc
}
