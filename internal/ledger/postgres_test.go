package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bizbank/bizbank/internal/dbtx"
	"github.com/bizbank/bizbank/internal/dbtx/pgtest"
)

func TestPostgresLedger_DuplicateIntentAppliesOnceUnderConcurrency(t *testing.T) {
	l := NewPostgresLedger(pgtest.Open(t, 8))
	ctx := context.Background()
	evt := PaymentEvent{IntentID: "pi_dup", PayerUserID: "user-a", AmountMinor: 2_500, Currency: EUR, Kind: EventCaptured}

	const workers = 12
	statuses := map[ApplyStatus]int{}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := l.ApplyPaymentEvent(ctx, evt)
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			mu.Lock()
			statuses[status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if statuses[StatusApplied] != 1 || statuses[StatusIdempotent] != workers-1 {
		t.Fatalf("expected one applied delivery, got %v", statuses)
	}
	if got := balanceOf(t, l, "user-a", EUR); got != 2_500 {
		t.Fatalf("expected 2500, got %d", got)
	}
	entries, err := l.Entries(ctx, "user-a", EntryFilter{CorrelationID: "pi_dup"})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected one cash and one clearing entry, got %d", len(entries))
	}
}

func TestPostgresLedger_ConcurrentCapturesNeverOverdraw(t *testing.T) {
	l := NewPostgresLedger(pgtest.Open(t, 8))
	ctx := context.Background()
	if _, err := l.TopUp(ctx, TopUpInput{UserID: "user-a", AmountMinor: 1_000, Currency: EUR, CorrelationID: "seed"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const workers = 20
	var (
		wg               sync.WaitGroup
		mu               sync.Mutex
		applied, refused int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.ApplyPaymentEvent(ctx, PaymentEvent{
				IntentID: fmt.Sprintf("pi_%d", i), PayerUserID: "user-a", PayeeUserID: "user-b",
				AmountMinor: 100, Currency: EUR, Kind: EventCaptured,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ErrInsufficientFunds):
				refused++
			default:
				t.Errorf("capture %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if applied != 10 || refused != 10 {
		t.Fatalf("expected 10 applied and 10 refused, got %d and %d", applied, refused)
	}
	if got := balanceOf(t, l, "user-a", EUR); got != 0 {
		t.Fatalf("expected payer drained to 0, got %d", got)
	}
	if got := balanceOf(t, l, "user-b", EUR); got != 1_000 {
		t.Fatalf("expected payee 1000, got %d", got)
	}
}

func TestPostgresLedger_PostingJoinsCarriedTransaction(t *testing.T) {
	pool := pgtest.Open(t, 4)
	l := NewPostgresLedger(pool)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	evt := PaymentEvent{IntentID: "pi_tx", PayerUserID: "user-a", AmountMinor: 700, Currency: EUR, Kind: EventCaptured}
	if status, err := l.ApplyPaymentEvent(dbtx.WithTx(ctx, tx), evt); err != nil || status != StatusApplied {
		t.Fatalf("expected applied inside the transaction, got %s %v", status, err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if _, err := l.Balances(ctx, "user-a"); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected the rolled back posting to leave nothing, got %v", err)
	}
	if status, err := l.ApplyPaymentEvent(ctx, evt); err != nil || status != StatusApplied {
		t.Fatalf("expected the intent to apply after rollback, got %s %v", status, err)
	}
}

func TestPostgresLedger_TopUpReplayInsideTransaction(t *testing.T) {
	pool := pgtest.Open(t, 4)
	l := NewPostgresLedger(pool)
	ctx := context.Background()
	in := TopUpInput{UserID: "user-a", AmountMinor: 300, Currency: PLN, CorrelationID: "K1"}
	if _, err := l.TopUp(ctx, in); err != nil {
		t.Fatalf("top-up: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck
	txCtx := dbtx.WithTx(ctx, tx)
	res, err := l.TopUp(txCtx, in)
	if err != nil || res.Status != StatusIdempotent || res.BalanceMinor != 300 {
		t.Fatalf("expected idempotent replay with 300, got %+v %v", res, err)
	}
	if _, err := l.EnsureWallet(txCtx, "user-b"); err != nil {
		t.Fatalf("the carried transaction must stay usable: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}
