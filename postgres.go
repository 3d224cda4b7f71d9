package walletgo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	pgSchemaSQL = `
		CREATE TABLE IF NOT EXISTS accounts (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL CHECK (role IN ('admin', 'employee', 'vendor')),
			balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0)
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			payer_id BIGINT NOT NULL REFERENCES accounts (id),
			payee_id BIGINT NOT NULL REFERENCES accounts (id),
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			ts TIMESTAMPTZ NOT NULL DEFAULT now(),
			status TEXT NOT NULL DEFAULT 'completed'
		);

		CREATE INDEX IF NOT EXISTS transactions_ts_idx ON transactions (ts DESC);
		CREATE INDEX IF NOT EXISTS transactions_payer_idx ON transactions (payer_id);
		CREATE INDEX IF NOT EXISTS transactions_payee_idx ON transactions (payee_id);
	`

	pgSelectForUpdateSQL = `
		SELECT balance
		FROM accounts
		WHERE id = $1
		FOR UPDATE;
	`

	pgDebitSQL = `
		UPDATE accounts
		SET balance = balance - $1
		WHERE id = $2;
	`

	pgCreditSQL = `
		UPDATE accounts
		SET balance = balance + $1
		WHERE id = $2;
	`

	pgInsertTxnSQL = `
		INSERT INTO transactions (payer_id, payee_id, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, ts;
	`

	pgAdjustBalanceSQL = `
		UPDATE accounts
		SET balance = balance + $1
		WHERE id = $2
		RETURNING username, role, balance;
	`
)

type PostgresEndpoint struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

var (
	_ Repository = (*PostgresEndpoint)(nil)
)

// NewPostgresEndpoint opens the shared pool and verifies connectivity
// with bounded retry. Retry applies only here, at connection
// establishment; payments are never retried by the store.
func NewPostgresEndpoint(connStr string, log *zerolog.Logger) (*PostgresEndpoint, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	backoff := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		if err = pool.Ping(context.Background()); err == nil {
			break
		}
		if attempt == 5 {
			pool.Close()
			return nil, ErrTransient{Op: "connect", Err: err}
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("database ping failed, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}

	endpt := &PostgresEndpoint{
		pool: pool,
		log:  log,
	}
	return endpt, nil
}

// InitSchema creates the tables once at process start. It is idempotent
// and never runs from a request path.
func (pg *PostgresEndpoint) InitSchema(ctx context.Context) error {
	if _, err := pg.pool.Exec(ctx, pgSchemaSQL); err != nil {
		return pg.classify("init schema", 0, err)
	}
	return nil
}

func (pg *PostgresEndpoint) Close() {
	pg.pool.Close()
}

func (pg *PostgresEndpoint) CreateAccount(ctx context.Context, req CreateAccountReq) (*Account, error) {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return nil, ErrTransient{Op: "acquire", Err: err}
	}
	defer conn.Release()

	sql := `
	INSERT INTO accounts (id, username, role)
	VALUES ($1, $2, $3)
	RETURNING balance;
	`

	acct := &Account{
		ID:       req.AcctID,
		Username: req.Username,
		Role:     req.Role,
	}
	row := conn.QueryRow(ctx, sql, req.AcctID, req.Username, string(req.Role))
	if err = row.Scan(&acct.Balance); err != nil {
		return nil, pg.classify("create account", req.AcctID, err)
	}

	return acct, nil
}

func (pg *PostgresEndpoint) GetAccount(ctx context.Context, id snowflake.ID) (*Account, error) {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return nil, ErrTransient{Op: "acquire", Err: err}
	}
	defer conn.Release()

	sql := `
	SELECT username, role, balance
	FROM accounts
	WHERE id = $1;
	`

	row := conn.QueryRow(ctx, sql, id)
	var (
		rname string
		rrole string
		rbal  decimal.Decimal
	)
	if err = row.Scan(&rname, &rrole, &rbal); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound{ID: id.Int64()}
		}
		return nil, pg.classify("get account", id, err)
	}

	acct := &Account{
		ID:       id,
		Username: rname,
		Role:     Role(rrole),
		Balance:  rbal,
	}
	return acct, nil
}

func (pg *PostgresEndpoint) ListAccounts(ctx context.Context, role Role) ([]Account, error) {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return nil, ErrTransient{Op: "acquire", Err: err}
	}
	defer conn.Release()

	sql := `
	SELECT id, username, role, balance
	FROM accounts
	`
	args := []interface{}{}
	if role != "" {
		sql += `WHERE role = $1`
		args = append(args, string(role))
	}
	sql += ` ORDER BY id;`

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, pg.classify("list accounts", 0, err)
	}
	defer rows.Close()

	var accts []Account
	for rows.Next() {
		var (
			acct  Account
			rid   int64
			rrole string
		)
		if err = rows.Scan(&rid, &acct.Username, &rrole, &acct.Balance); err != nil {
			return nil, pg.classify("list accounts", 0, err)
		}
		acct.ID = snowflake.ParseInt64(rid)
		acct.Role = Role(rrole)
		accts = append(accts, acct)
	}
	if err = rows.Err(); err != nil {
		return nil, pg.classify("list accounts", 0, err)
	}

	return accts, nil
}

// AdjustBalance pushes the increment into a single UPDATE so concurrent
// adjustments serialize in the store and neither is lost. The CHECK
// constraint on balance makes the non-negative test and the write one
// atomic operation.
func (pg *PostgresEndpoint) AdjustBalance(ctx context.Context, id snowflake.ID, delta decimal.Decimal) (*Account, error) {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return nil, ErrTransient{Op: "acquire", Err: err}
	}
	defer conn.Release()

	acct := &Account{ID: id}
	row := conn.QueryRow(ctx, pgAdjustBalanceSQL, delta, id)
	if err = row.Scan(&acct.Username, &acct.Role, &acct.Balance); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound{ID: id.Int64()}
		}
		return nil, pg.classify("adjust balance", id, err)
	}

	return acct, nil
}

// Transfer executes the whole payment inside one database transaction:
// lock both accounts, re-check the payer balance against the locked row,
// debit, credit, append the ledger entry, commit. Any failure rolls the
// unit back whole; a failure at commit itself is reported with the
// outcome marked unknown.
func (pg *PostgresEndpoint) Transfer(ctx context.Context, payerID, payeeID snowflake.ID, amount decimal.Decimal) (*Transaction, error) {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return nil, ErrTransient{Op: "acquire", Err: err}
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, ErrTransient{Op: "begin", Err: err}
	}
	// No-op once the transaction has committed.
	defer tx.Rollback(ctx)

	// Lock rows in id order so two opposing transfers cannot deadlock.
	var payerBal decimal.Decimal
	first, second := payerID, payeeID
	if second < first {
		first, second = second, first
	}
	for _, id := range []snowflake.ID{first, second} {
		var bal decimal.Decimal
		row := tx.QueryRow(ctx, pgSelectForUpdateSQL, id)
		if err = row.Scan(&bal); err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrNotFound{ID: id.Int64()}
			}
			return nil, pg.classify("transfer lock", id, err)
		}
		if id == payerID {
			payerBal = bal
		}
	}

	// The authoritative balance check: the value under lock, not the
	// one validation saw.
	if payerBal.LessThan(amount) {
		return nil, ErrInsufficientFunds{ID: payerID, Amount: amount}
	}

	if _, err = tx.Exec(ctx, pgDebitSQL, amount, payerID); err != nil {
		return nil, pg.classify("transfer debit", payerID, err)
	}
	if _, err = tx.Exec(ctx, pgCreditSQL, amount, payeeID); err != nil {
		return nil, pg.classify("transfer credit", payeeID, err)
	}

	txn := &Transaction{
		PayerID: payerID,
		PayeeID: payeeID,
		Amount:  amount,
		Status:  TxnCompleted,
	}
	row := tx.QueryRow(ctx, pgInsertTxnSQL, payerID, payeeID, amount, string(TxnCompleted))
	if err = row.Scan(&txn.ID, &txn.Timestamp); err != nil {
		return nil, pg.classify("transfer ledger insert", payerID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		pg.log.Err(err).
			Str("payer", payerID.String()).
			Str("payee", payeeID.String()).
			Msg("transfer commit failed, outcome unknown")
		return nil, ErrTransient{Op: "commit", OutcomeUnknown: true, Err: err}
	}

	return txn, nil
}

func (pg *PostgresEndpoint) QueryTransactions(ctx context.Context, filter TxnFilter) ([]Transaction, error) {
	conn, err := pg.pool.Acquire(ctx)
	if err != nil {
		return nil, ErrTransient{Op: "acquire", Err: err}
	}
	defer conn.Release()

	sql := `
	SELECT id, payer_id, payee_id, amount, ts, status
	FROM transactions
	`
	var (
		conds []string
		args  []interface{}
	)
	if filter.StartTime != nil {
		args = append(args, *filter.StartTime)
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if filter.EndTime != nil {
		args = append(args, *filter.EndTime)
		conds = append(conds, fmt.Sprintf("ts <= $%d", len(args)))
	}
	if filter.PayerID != 0 {
		args = append(args, filter.PayerID)
		conds = append(conds, fmt.Sprintf("payer_id = $%d", len(args)))
	}
	if filter.PayeeID != 0 {
		args = append(args, filter.PayeeID)
		conds = append(conds, fmt.Sprintf("payee_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		sql += "WHERE " + strings.Join(conds, " AND ") + "\n"
	}
	sql += "ORDER BY ts DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, pg.classify("query transactions", 0, err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var (
			txn          Transaction
			payer, payee int64
			status       string
		)
		if err = rows.Scan(&txn.ID, &payer, &payee, &txn.Amount, &txn.Timestamp, &status); err != nil {
			return nil, pg.classify("query transactions", 0, err)
		}
		txn.PayerID = snowflake.ParseInt64(payer)
		txn.PayeeID = snowflake.ParseInt64(payee)
		txn.Status = TxnStatus(status)
		txns = append(txns, txn)
	}
	if err = rows.Err(); err != nil {
		return nil, pg.classify("query transactions", 0, err)
	}

	return txns, nil
}

// classify maps driver errors into the engine's taxonomy so nothing
// pgx-shaped leaks past the repository boundary.
func (pg *PostgresEndpoint) classify(op string, id snowflake.ID, err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		switch {
		case pgerr.Code == "23514":
			return ErrConstraintViolation{ID: id}
		case pgerr.Code == "23503":
			return ErrNotFound{ID: id.Int64()}
		case pgerr.Code == "23505":
			return ErrBadRequest{Fields: map[string]string{"username": "already exists"}}
		// connection exceptions, resource exhaustion, shutdown
		case strings.HasPrefix(pgerr.Code, "08"),
			strings.HasPrefix(pgerr.Code, "53"),
			strings.HasPrefix(pgerr.Code, "57"):
			return ErrTransient{Op: op, Err: err}
		}
	}
	var neterr net.Error
	if errors.As(err, &neterr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return ErrTransient{Op: op, Err: err}
	}

	pg.log.Err(err).Str("op", op).Msg("unclassified store error")
	return ErrInternalServer
}
