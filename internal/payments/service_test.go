package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bizbank/bizbank/internal/accounts"
	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/ledger"
	"github.com/bizbank/bizbank/internal/logging"
	"github.com/bizbank/bizbank/internal/notification"
	"github.com/bizbank/bizbank/internal/rates"
	"github.com/bizbank/bizbank/internal/verification"
	"github.com/bizbank/bizbank/internal/wallet"
)

type testNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *testNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	for i, m := range n.messages {
		out[i] = m.Kind
	}
	return out
}

type fixture struct {
	svc      *Service
	ledger   ledger.Ledger
	accounts *accounts.Service
	notifier *testNotifier
}

var (
	alice    = auth.Principal{UserID: "alice", DisplayName: "Alice"}
	bob      = auth.Principal{UserID: "bob", DisplayName: "Bob"}
	operator = auth.Principal{UserID: "ops", Capabilities: []string{auth.CapPaymentsConfirm}}
)

const (
	aliceEUR = "DE89370400440532013000"
	alicePLN = "PL61109010140000071219812874"
	bobEUR   = "FR1420041010050500013M02606"
	external = "GB29NWBK60161331926819"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, verification.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, store verification.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := logging.Discard()
	led := ledger.NewInMemory()
	notifier := &testNotifier{}
	accountSvc := accounts.NewService(accounts.NewMemoryRepository())
	for _, in := range []accounts.CreateInput{
		{OwnerID: alice.UserID, IBAN: aliceEUR, Currency: "EUR"},
		{OwnerID: alice.UserID, IBAN: alicePLN, Currency: "PLN"},
		{OwnerID: bob.UserID, IBAN: bobEUR, Currency: "EUR"},
	} {
		if _, err := accountSvc.Create(ctx, in); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}
	verifications := verification.NewService(store, notifier, nil, logger)
	svc := NewService(
		NewMemoryRepository(),
		accountSvc,
		rates.Static(),
		wallet.NewService(led, nil, logger),
		verifications,
		notifier,
		logger,
	)
	return &fixture{svc: svc, ledger: led, accounts: accountSvc, notifier: notifier}
}

func (f *fixture) balance(t *testing.T, userID string, currency ledger.Currency) int64 {
	t.Helper()
	balances, err := f.ledger.Balances(context.Background(), userID)
	if errors.Is(err, ledger.ErrWalletNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	for _, b := range balances {
		if b.Currency == currency {
			return b.BalanceMinor
		}
	}
	return 0
}

func (f *fixture) status(t *testing.T, id string) Status {
	t.Helper()
	p, err := f.svc.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	return p.Status
}

func TestAcceptedPaymentMovesFundsToInternalBeneficiary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := ledger.SeedBalance(f.ledger, alice.UserID, ledger.EUR, 10_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	p, v, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName:    "Bob",
		BeneficiaryAccount: "fr14 2004 1010 0505 0001 3m02 606",
		FromAccount:        aliceEUR,
		Amount:             decimal.RequireFromString("40.00"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.BeneficiaryID != bob.UserID || p.Currency != ledger.EUR || p.DebitMinor != 4_000 || p.Status != StatusPending {
		t.Fatalf("unexpected payment %+v", p)
	}
	if v.Action != verification.ActionPaymentCreated || v.AssigneeID != alice.UserID {
		t.Fatalf("unexpected verification %+v", v)
	}

	decided, err := f.svc.Decide(ctx, alice, verification.Decision{ID: v.ID, Code: v.Code, Accept: true})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != verification.StatusCompleted || f.status(t, p.ID) != StatusConfirmed {
		t.Fatalf("expected completed verification and confirmed payment")
	}
	if got := f.balance(t, alice.UserID, ledger.EUR); got != 6_000 {
		t.Fatalf("expected alice 6000, got %d", got)
	}
	if got := f.balance(t, bob.UserID, ledger.EUR); got != 4_000 {
		t.Fatalf("expected bob 4000, got %d", got)
	}
	kinds := f.notifier.kinds()
	if len(kinds) != 2 || kinds[0] != notification.KindVerificationCode || kinds[1] != notification.KindPaymentReceived {
		t.Fatalf("unexpected notifications %v", kinds)
	}
}

func TestLedgerFailureRejectsPaymentAndVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := ledger.SeedBalance(f.ledger, alice.UserID, ledger.EUR, 10_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, v, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName: "Bob", BeneficiaryAccount: bobEUR, FromAccount: aliceEUR,
		Amount: decimal.RequireFromString("150"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Decide(ctx, alice, verification.Decision{ID: v.ID, Code: v.Code, Accept: true})
	var insufficient *ledger.InsufficientFundsError
	if !errors.As(err, &insufficient) || insufficient.AvailableMinor != 10_000 {
		t.Fatalf("expected insufficient funds with 10000 available, got %v", err)
	}
	stored, err := f.svc.verifications.Get(ctx, v.ID)
	if err != nil {
		t.Fatalf("get verification: %v", err)
	}
	if stored.Status != verification.StatusRejected || f.status(t, p.ID) != StatusRejected {
		t.Fatalf("expected both rejected, got verification %s payment %s", stored.Status, f.status(t, p.ID))
	}
	entries, _ := f.ledger.Entries(ctx, alice.UserID, ledger.EntryFilter{CorrelationID: p.ID})
	if len(entries) != 0 {
		t.Fatalf("expected no entries for the failed payment, got %d", len(entries))
	}
}

func TestRejectedPaymentLeavesBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := ledger.SeedBalance(f.ledger, alice.UserID, ledger.EUR, 1_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, v, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName: "Bob", BeneficiaryAccount: bobEUR, FromAccount: aliceEUR,
		Amount: decimal.RequireFromString("5.50"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Decide(ctx, alice, verification.Decision{ID: v.ID, Code: v.Code, Accept: false}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if f.status(t, p.ID) != StatusRejected || f.balance(t, alice.UserID, ledger.EUR) != 1_000 {
		t.Fatalf("rejection must not touch the ledger")
	}
}

func TestExternalPaymentConvertsIntoAccountCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := ledger.SeedBalance(f.ledger, alice.UserID, ledger.PLN, 10_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, v, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName: "Supplier Ltd", BeneficiaryAccount: external, FromAccount: alicePLN,
		Amount: decimal.RequireFromString("10.00"), Currency: "eur",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.BeneficiaryID != "" || p.FromCurrency != ledger.PLN || p.DebitMinor != 4_300 || p.Payee() != ExternalSettlementUser {
		t.Fatalf("unexpected payment %+v", p)
	}
	if _, err := f.svc.Decide(ctx, operator, verification.Decision{ID: v.ID, Code: v.Code, Accept: true}); err != nil {
		t.Fatalf("operator decide: %v", err)
	}
	if got := f.balance(t, alice.UserID, ledger.PLN); got != 5_700 {
		t.Fatalf("expected 5700 PLN left, got %d", got)
	}
	if got := f.balance(t, ExternalSettlementUser, ledger.PLN); got != 4_300 {
		t.Fatalf("expected settlement wallet to hold 4300, got %d", got)
	}
}

func TestReversalRefundsConfirmedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := ledger.SeedBalance(f.ledger, alice.UserID, ledger.EUR, 10_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, v, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName: "Bob", BeneficiaryAccount: bobEUR, FromAccount: aliceEUR,
		Amount: decimal.RequireFromString("40"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.RequestReversal(ctx, alice, p.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pending payment cannot be reverted, got %v", err)
	}
	if _, err := f.svc.Decide(ctx, alice, verification.Decision{ID: v.ID, Code: v.Code, Accept: true}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	rv, err := f.svc.RequestReversal(ctx, alice, p.ID)
	if err != nil {
		t.Fatalf("request reversal: %v", err)
	}
	if _, err := f.svc.Decide(ctx, alice, verification.Decision{ID: rv.ID, Code: rv.Code, Accept: true}); err != nil {
		t.Fatalf("accept reversal: %v", err)
	}
	if f.status(t, p.ID) != StatusReverted {
		t.Fatalf("expected reverted, got %s", f.status(t, p.ID))
	}
	if a, b := f.balance(t, alice.UserID, ledger.EUR), f.balance(t, bob.UserID, ledger.EUR); a != 10_000 || b != 0 {
		t.Fatalf("expected funds restored, got alice %d bob %d", a, b)
	}
	entries, _ := f.ledger.Entries(ctx, alice.UserID, ledger.EntryFilter{CorrelationID: ReversalCorrelationID(p.ID)})
	if len(entries) != 2 {
		t.Fatalf("expected reversal pair on alice's wallet, got %d entries", len(entries))
	}
}

func TestCreateAndDecideEnforceOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.Create(ctx, bob, CreateInput{
		BeneficiaryName: "Me", BeneficiaryAccount: bobEUR, FromAccount: aliceEUR,
		Amount: decimal.RequireFromString("1"),
	}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, _, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName: "Bob", BeneficiaryAccount: bobEUR, FromAccount: aliceEUR,
		Amount: decimal.RequireFromString("0.001"),
	}); !errors.Is(err, rates.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	_, v, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName: "Bob", BeneficiaryAccount: bobEUR, FromAccount: aliceEUR,
		Amount: decimal.RequireFromString("1"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Decide(ctx, bob, verification.Decision{ID: v.ID, Code: v.Code, Accept: true}); !errors.Is(err, verification.ErrNotAllowed) {
		t.Fatalf("expected bob to be refused, got %v", err)
	}
	wrong := "000000"
	if v.Code == wrong {
		wrong = "111111"
	}
	if _, err := f.svc.Decide(ctx, alice, verification.Decision{ID: v.ID, Code: wrong, Accept: true}); !errors.Is(err, verification.ErrInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}
}

func TestWebhookAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hook := ProviderWebhook{
		IntentID: "pi_123",
		UserID:   alice.UserID,
		Amount:   decimal.RequireFromString("12.34"),
		Currency: "GBP",
		Type:     "payment_captured",
	}

	status, err := f.svc.HandleWebhook(ctx, hook)
	if err != nil || status != ledger.StatusApplied {
		t.Fatalf("expected applied, got %s %v", status, err)
	}
	status, err = f.svc.HandleWebhook(ctx, hook)
	if err != nil || status != ledger.StatusIdempotent {
		t.Fatalf("expected idempotent, got %s %v", status, err)
	}
	if got := f.balance(t, alice.UserID, ledger.GBP); got != 1_234 {
		t.Fatalf("expected 1234, got %d", got)
	}

	hook.IntentID = "pi_124"
	hook.Amount = decimal.RequireFromString("1.234")
	if _, err := f.svc.HandleWebhook(ctx, hook); !errors.Is(err, ledger.ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
}

func TestReversalCorrelationIDIsStable(t *testing.T) {
	id := "3b241101-e2bb-4255-8caf-4136c566a962"
	if ReversalCorrelationID(id) != ReversalCorrelationID(id) {
		t.Fatalf("expected deterministic reversal id")
	}
	if ReversalCorrelationID(id) == id {
		t.Fatalf("reversal id must differ from the payment id")
	}
}

func TestPaymentToOwnAccountIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := ledger.SeedBalance(f.ledger, alice.UserID, ledger.EUR, 1_000); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, _, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName: "Alice", BeneficiaryAccount: alicePLN, FromAccount: aliceEUR,
		Amount: decimal.RequireFromString("5"),
	})
	if !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected invalid payment, got %v", err)
	}
	mine, err := f.svc.ListMine(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("expected nothing stored, got %d payments", len(mine))
	}
	if got := f.balance(t, alice.UserID, ledger.EUR); got != 1_000 {
		t.Fatalf("expected balance untouched, got %d", got)
	}

	hook := ProviderWebhook{
		IntentID:      "pi_self",
		UserID:        alice.UserID,
		BeneficiaryID: alice.UserID,
		Amount:        decimal.RequireFromString("10"),
		Currency:      "EUR",
		Type:          "payment_captured",
	}
	if _, err := f.svc.HandleWebhook(ctx, hook); !errors.Is(err, ledger.ErrInvalidEvent) {
		t.Fatalf("expected invalid event for a self capture, got %v", err)
	}
	if got := f.balance(t, alice.UserID, ledger.EUR); got != 1_000 {
		t.Fatalf("self capture must not mint funds, got %d", got)
	}
}

var errStoreDown = errors.New("verification store unavailable")

type failingCreateStore struct {
	verification.Store
}

func (failingCreateStore) Create(context.Context, verification.Verification) error {
	return errStoreDown
}

func TestCreateRejectsPaymentWhenVerificationCannotBeStored(t *testing.T) {
	f := newFixtureWithStore(t, failingCreateStore{Store: verification.NewMemoryStore()})
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName: "Bob", BeneficiaryAccount: bobEUR, FromAccount: aliceEUR,
		Amount: decimal.RequireFromString("5"),
	})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	mine, err := f.svc.ListMine(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].Status != StatusRejected {
		t.Fatalf("expected the orphaned payment to be rejected, got %+v", mine)
	}
}

func TestRefusedCaptureKeepsConfirmedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := ledger.SeedBalance(f.ledger, alice.UserID, ledger.EUR, 10_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, v, err := f.svc.Create(ctx, alice, CreateInput{
		BeneficiaryName: "Bob", BeneficiaryAccount: bobEUR, FromAccount: aliceEUR,
		Amount: decimal.RequireFromString("10"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.repo.UpdateStatus(ctx, p.ID, StatusConfirmed, time.Now()); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := f.svc.Decide(ctx, alice, verification.Decision{ID: v.ID, Code: v.Code, Accept: true}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if got := f.status(t, p.ID); got != StatusConfirmed {
		t.Fatalf("a refused capture must not overwrite status %s", got)
	}
	if got := f.balance(t, alice.UserID, ledger.EUR); got != 10_000 {
		t.Fatalf("expected balance untouched, got %d", got)
	}
}
