package accounts

import (
	"strings"
	"time"
	"unicode"

	"github.com/bizbank/bizbank/internal/apperr"
	"github.com/bizbank/bizbank/internal/ledger"
)

var (
	ErrNotFound    = apperr.New(apperr.ErrNotFound, "account_not_found", "account not found")
	ErrIBANTaken   = apperr.New(apperr.ErrConflict, "iban_taken", "iban already registered")
	ErrNotOwner    = apperr.New(apperr.ErrForbidden, "not_owner", "account belongs to another user")
	ErrInvalidIBAN = apperr.New(apperr.ErrInvalidInput, "invalid_iban", "iban is required")
)

// Account is a user-owned bank account identified by its IBAN.
type Account struct {
	ID        string
	UserID    string
	IBAN      string
	Currency  ledger.Currency
	CreatedAt time.Time
}

// NormalizeIBAN strips separators and upper-cases the remaining characters.
func NormalizeIBAN(iban string) string {
	var b strings.Builder
	for _, r := range iban {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
