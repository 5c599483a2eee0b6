package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu           sync.RWMutex
	wallets      map[string]Wallet // by user id
	entries      []Entry
	correlations map[string]struct{}
	walletCorr   map[string]struct{}
	now          func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		wallets:      make(map[string]Wallet),
		correlations: make(map[string]struct{}),
		walletCorr:   make(map[string]struct{}),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (l *inMemoryLedger) ApplyPaymentEvent(_ context.Context, evt PaymentEvent) (ApplyStatus, error) {
	if err := evt.Validate(); err != nil {
		return "", err
	}
	plan := planEvent(evt)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.correlations[evt.IntentID]; exists {
		return StatusIdempotent, nil
	}

	if plan.source != "" {
		var available int64
		if w, ok := l.wallets[plan.source]; ok {
			available = l.cashBalanceLocked(w.ID, evt.Currency)
		}
		if available < evt.AmountMinor {
			return "", &InsufficientFundsError{Currency: evt.Currency, AvailableMinor: available}
		}
	}

	wallets := make(map[string]Wallet, len(plan.legs))
	for _, userID := range plan.userIDs() {
		wallets[userID] = l.ensureWalletLocked(userID)
	}

	l.appendLocked(plan.entries(evt, wallets, l.now()))
	return StatusApplied, nil
}

func (l *inMemoryLedger) TopUp(_ context.Context, input TopUpInput) (TopUpResult, error) {
	if err := input.validate(); err != nil {
		return TopUpResult{}, err
	}
	input = input.withDefaults()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.ensureWalletLocked(input.UserID)
	res := TopUpResult{
		Status:        StatusApplied,
		CorrelationID: input.CorrelationID,
		WalletID:      w.ID,
		UserID:        w.UserID,
		Currency:      input.Currency,
	}
	if _, exists := l.walletCorr[w.ID+"|"+input.CorrelationID]; exists {
		res.Status = StatusIdempotent
	} else {
		l.appendLocked(pair(w.ID, true, input.AmountMinor, input.Currency, input.Description, input.CorrelationID, l.now()))
	}
	res.BalanceMinor = l.cashBalanceLocked(w.ID, input.Currency)
	return res, nil
}

func (l *inMemoryLedger) EnsureWallet(_ context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensureWalletLocked(userID), nil
}

func (l *inMemoryLedger) Wallet(_ context.Context, userID string) (Wallet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	w, ok := l.wallets[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (l *inMemoryLedger) Balances(ctx context.Context, userID string) ([]Balance, error) {
	entries, err := l.Entries(ctx, userID, EntryFilter{Account: Cash})
	if err != nil {
		return nil, err
	}
	return cashBalances(entries), nil
}

func (l *inMemoryLedger) Entries(_ context.Context, userID string, filter EntryFilter) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	w, ok := l.wallets[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	out := []Entry{}
	for _, e := range l.entries {
		if e.WalletID != w.ID {
			continue
		}
		if filter.CorrelationID != "" && e.CorrelationID != filter.CorrelationID {
			continue
		}
		if filter.Account != "" && e.Account != filter.Account {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *inMemoryLedger) ensureWalletLocked(userID string) Wallet {
	if w, ok := l.wallets[userID]; ok {
		return w
	}
	w := Wallet{ID: uuid.NewString(), UserID: userID, CreatedAt: l.now()}
	l.wallets[userID] = w
	return w
}

func (l *inMemoryLedger) cashBalanceLocked(walletID string, currency Currency) int64 {
	var sum int64
	for _, e := range l.entries {
		if e.WalletID == walletID && e.Account == Cash && e.Currency == currency {
			sum += e.Signed()
		}
	}
	return sum
}

func (l *inMemoryLedger) appendLocked(entries []Entry) {
	for _, e := range entries {
		l.entries = append(l.entries, e)
		l.correlations[e.CorrelationID] = struct{}{}
		l.walletCorr[e.WalletID+"|"+e.CorrelationID] = struct{}{}
	}
}
