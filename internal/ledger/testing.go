package ledger

import (
	"context"

	"github.com/google/uuid"
)

// SeedBalance is a test helper that credits amount to the user's cash
// account through a top-up with a fresh correlation id.
func SeedBalance(l Ledger, userID string, currency Currency, amount int64) error {
	_, err := l.TopUp(context.Background(), TopUpInput{
		UserID:        userID,
		AmountMinor:   amount,
		Currency:      currency,
		CorrelationID: "seed:" + uuid.NewString(),
		Description:   "seed",
	})
	return err
}
