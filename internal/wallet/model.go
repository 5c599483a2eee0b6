package wallet

import (
	"time"

	"github.com/bizbank/bizbank/internal/ledger"
)

// Overview is a wallet with its per-currency cash balances.
type Overview struct {
	WalletID  string
	UserID    string
	CreatedAt time.Time
	Balances  []ledger.Balance
	AsOf      time.Time
}
