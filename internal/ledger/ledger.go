package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bizbank/bizbank/internal/apperr"
)

var (
	// ErrInsufficientFunds matches any InsufficientFundsError.
	ErrInsufficientFunds = apperr.ErrInsufficientFunds

	// ErrInvalidEvent is returned for payment events failing validation.
	ErrInvalidEvent = apperr.New(apperr.ErrInvalidInput, "invalid_event", "invalid payment event")

	// ErrInvalidRequest is returned for top-ups failing validation.
	ErrInvalidRequest = apperr.New(apperr.ErrInvalidInput, "invalid_request", "invalid top-up request")

	// ErrWalletNotFound indicates the user has never been touched by the ledger.
	ErrWalletNotFound = apperr.New(apperr.ErrNotFound, "wallet_not_found", "wallet not found")
)

// InsufficientFundsError reports the cash balance available to the source
// wallet when a transfer could not be covered.
type InsufficientFundsError struct {
	Currency       Currency
	AvailableMinor int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %d %s available", e.AvailableMinor, e.Currency)
}

// Is lets errors.Is(err, ErrInsufficientFunds) match.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Currency is an ISO code from a closed set.
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	PLN Currency = "PLN"
	GBP Currency = "GBP"
)

// Currencies lists every supported currency.
var Currencies = []Currency{EUR, USD, PLN, GBP}

// ParseCurrency accepts a currency code in any case.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", apperr.New(apperr.ErrInvalidInput, "invalid_currency", fmt.Sprintf("unsupported currency %q", s))
	}
	return c, nil
}

// Valid reports whether c is one of the supported currencies.
func (c Currency) Valid() bool {
	switch c {
	case EUR, USD, PLN, GBP:
		return true
	}
	return false
}

// EntryType is the side of a posting.
type EntryType string

const (
	Credit EntryType = "credit"
	Debit  EntryType = "debit"
)

// Account is the ledger leg of a wallet an entry is posted to. Balances are
// derived from Cash; Clearing keeps each wallet's own postings balanced.
type Account string

const (
	Cash     Account = "cash"
	Clearing Account = "clearing"
)

// Wallet is the per-user container of ledger entries.
type Wallet struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// Entry is an immutable ledger posting.
type Entry struct {
	ID                  string
	WalletID            string
	AmountMinor         int64
	Currency            Currency
	Type                EntryType
	Account             Account
	CounterpartyAccount Account
	Description         string
	CorrelationID       string
	CreatedAt           time.Time
}

// Signed returns the amount with credits positive and debits negative.
func (e Entry) Signed() int64 {
	if e.Type == Debit {
		return -e.AmountMinor
	}
	return e.AmountMinor
}

// Balance is the cash balance of a wallet in one currency.
type Balance struct {
	Currency     Currency
	BalanceMinor int64
}

// EventKind classifies an external payment event.
type EventKind string

const (
	EventCaptured           EventKind = "payment_captured"
	EventRefundSucceeded    EventKind = "refund_succeeded"
	EventChargebackReceived EventKind = "chargeback_received"
)

// PaymentEvent is an external money movement keyed by IntentID, which is
// used as the correlation id of every entry it produces.
type PaymentEvent struct {
	IntentID    string
	PayerUserID string
	PayeeUserID string
	AmountMinor int64
	Currency    Currency
	Kind        EventKind
	Description string
}

// ApplyStatus is the successful outcome of a mutation.
type ApplyStatus string

const (
	StatusApplied    ApplyStatus = "applied"
	StatusIdempotent ApplyStatus = "idempotent"
)

// TopUpInput describes a direct credit to a user's wallet.
type TopUpInput struct {
	UserID        string
	AmountMinor   int64
	Currency      Currency
	CorrelationID string
	Description   string
}

// TopUpResult is returned for applied and idempotent top-ups alike.
type TopUpResult struct {
	Status        ApplyStatus
	CorrelationID string
	WalletID      string
	UserID        string
	Currency      Currency
	BalanceMinor  int64
}

// EntryFilter narrows an entry listing. Zero values match everything.
type EntryFilter struct {
	CorrelationID string
	Account       Account
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
type Ledger interface {
	ApplyPaymentEvent(ctx context.Context, evt PaymentEvent) (ApplyStatus, error)
	TopUp(ctx context.Context, input TopUpInput) (TopUpResult, error)
	EnsureWallet(ctx context.Context, userID string) (Wallet, error)
	Wallet(ctx context.Context, userID string) (Wallet, error)
	Balances(ctx context.Context, userID string) ([]Balance, error)
	Entries(ctx context.Context, userID string, filter EntryFilter) ([]Entry, error)
}
