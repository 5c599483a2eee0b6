package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/bizbank/bizbank/internal/apperr"
	"github.com/bizbank/bizbank/internal/ledger"
)

var (
	ErrNotFound       = apperr.New(apperr.ErrNotFound, "payment_not_found", "payment not found")
	ErrNotOwner       = apperr.New(apperr.ErrForbidden, "not_owner", "from account belongs to another user")
	ErrInvalidPayment = apperr.New(apperr.ErrInvalidInput, "invalid_payment", "invalid payment")
	ErrInvalidState   = apperr.New(apperr.ErrConflict, "invalid_payment_state", "payment is not in a state allowing this operation")
)

// ExternalSettlementUser is the ledger owner standing in for beneficiaries
// outside the bank. Outbound payments move cash into its wallet.
const ExternalSettlementUser = "settlement:external"

// Status of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusReverted  Status = "reverted"
)

// Payment is an outgoing transfer from one of the user's accounts. The
// ledger is debited DebitMinor in FromCurrency when the payment is confirmed.
type Payment struct {
	ID                 string
	UserID             string
	BeneficiaryName    string
	BeneficiaryAccount string
	BeneficiaryID      string
	FromAccount        string
	AmountMinor        int64
	Currency           ledger.Currency
	FromCurrency       ledger.Currency
	DebitMinor         int64
	Details            string
	Status             Status
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Payee returns the ledger user credited by the payment.
func (p Payment) Payee() string {
	if p.BeneficiaryID != "" {
		return p.BeneficiaryID
	}
	return ExternalSettlementUser
}

// ReversalCorrelationID derives the ledger correlation id of a payment's
// reversal. The same payment always yields the same id.
func ReversalCorrelationID(paymentID string) string {
	ns, err := uuid.Parse(paymentID)
	if err != nil {
		ns = uuid.NewSHA1(uuid.NameSpaceOID, []byte(paymentID))
	}
	return uuid.NewSHA1(ns, []byte("reversal")).String()
}
