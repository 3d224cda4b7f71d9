package walletgo

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInternalServer = errors.New("internal server error")
)

type ErrBadRequest struct {
	Fields map[string]string `json:"fields"`
}

func (e ErrBadRequest) Error() string {
	return fmt.Sprintf("missing/invalid params: %v", e.Fields)
}

type ErrNotFound struct {
	ID int64 `json:"id"`
}

func (e ErrNotFound) Error() string {
	return "record not found"
}

type ErrInvalidAmount struct {
	Amount decimal.Decimal `json:"amount"`
}

func (e ErrInvalidAmount) Error() string {
	return fmt.Sprintf("invalid amount: %s", e.Amount)
}

type ErrInvalidParties struct {
	PayerID snowflake.ID `json:"payerId"`
	PayeeID snowflake.ID `json:"payeeId"`
}

func (e ErrInvalidParties) Error() string {
	return "payer and payee must be distinct accounts"
}

// ErrInvalidPayer is returned when the paying account is missing or does
// not hold the configured paying role.
type ErrInvalidPayer struct {
	ID   snowflake.ID `json:"id"`
	Role Role         `json:"role,omitempty"`
}

func (e ErrInvalidPayer) Error() string {
	return fmt.Sprintf("account %d cannot pay", e.ID)
}

type ErrInvalidPayee struct {
	ID   snowflake.ID `json:"id"`
	Role Role         `json:"role,omitempty"`
}

func (e ErrInvalidPayee) Error() string {
	return fmt.Sprintf("account %d cannot receive payments", e.ID)
}

type ErrInsufficientFunds struct {
	ID     snowflake.ID    `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("account %d has insufficient balance for %s", e.ID, e.Amount)
}

// ErrConstraintViolation surfaces a store-level rejection, e.g. an
// adjustment that would drive a balance below zero.
type ErrConstraintViolation struct {
	ID snowflake.ID `json:"id"`
}

func (e ErrConstraintViolation) Error() string {
	return fmt.Sprintf("balance constraint violated on account %d", e.ID)
}

// ErrTransient wraps connectivity and timeout failures from the store.
// OutcomeUnknown is set when the failure happened at commit, where the
// transfer may or may not have been applied; such attempts must not be
// blindly retried.
type ErrTransient struct {
	Op             string
	OutcomeUnknown bool
	Err            error
}

func (e ErrTransient) Error() string {
	if e.OutcomeUnknown {
		return fmt.Sprintf("transient failure during %s, outcome unknown: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e ErrTransient) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err represents a recoverable store failure
// rather than a business-rule violation.
func IsTransient(err error) bool {
	var te ErrTransient
	return errors.As(err, &te)
}
