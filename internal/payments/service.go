package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bizbank/bizbank/internal/accounts"
	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/ledger"
	"github.com/bizbank/bizbank/internal/notification"
	"github.com/bizbank/bizbank/internal/rates"
	"github.com/bizbank/bizbank/internal/verification"
)

// EventApplier posts payment events to the ledger.
type EventApplier interface {
	IngestEvent(ctx context.Context, evt ledger.PaymentEvent) (ledger.ApplyStatus, error)
}

var paymentActions = []verification.Action{
	verification.ActionPaymentCreated,
	verification.ActionPaymentReverted,
}

// Service coordinates payments, their confirmation and the ledger postings
// they cause.
type Service struct {
	repo          Repository
	accounts      *accounts.Service
	rates         *rates.Table
	events        EventApplier
	verifications *verification.Service
	notifier      notification.Notifier
	logger        *slog.Logger
	now           func() time.Time
}

// NewService constructs a payment service.
func NewService(
	repo Repository,
	accountService *accounts.Service,
	rateTable *rates.Table,
	events EventApplier,
	verifications *verification.Service,
	notifier notification.Notifier,
	logger *slog.Logger,
) *Service {
	if rateTable == nil {
		rateTable = rates.Static()
	}
	return &Service{
		repo:          repo,
		accounts:      accountService,
		rates:         rateTable,
		events:        events,
		verifications: verifications,
		notifier:      notifier,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput captures a payment order. Currency defaults to the currency
// of the from account.
type CreateInput struct {
	BeneficiaryName    string
	BeneficiaryAccount string
	FromAccount        string
	Amount             decimal.Decimal
	Currency           string
	Details            string
}

// Create stores a pending payment and opens the verification that confirms it.
func (s *Service) Create(ctx context.Context, actor auth.Principal, input CreateInput) (Payment, verification.Verification, error) {
	p, err := s.build(ctx, actor, input)
	if err != nil {
		return Payment{}, verification.Verification{}, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Payment{}, verification.Verification{}, err
	}
	v, err := s.verifications.Create(ctx, verification.CreateInput{
		Action:     verification.ActionPaymentCreated,
		TargetID:   p.ID,
		CreatedBy:  actor.UserID,
		AssigneeID: actor.UserID,
		NotifyTo:   actor.UserID,
	})
	if err != nil {
		// A payment without a verification can never be decided.
		if serr := s.setStatus(ctx, p, StatusRejected); serr != nil {
			err = errors.Join(err, serr)
		}
		return Payment{}, verification.Verification{}, err
	}
	s.logger.Info("payment created",
		slog.String("payment_id", p.ID),
		slog.String("user_id", p.UserID),
		slog.Int64("debit_minor", p.DebitMinor),
		slog.String("from_currency", string(p.FromCurrency)),
	)
	return p, v, nil
}

func (s *Service) build(ctx context.Context, actor auth.Principal, input CreateInput) (Payment, error) {
	name := strings.TrimSpace(input.BeneficiaryName)
	if name == "" {
		return Payment{}, fmt.Errorf("%w: beneficiary name is required", ErrInvalidPayment)
	}
	if len(name) > 200 {
		return Payment{}, fmt.Errorf("%w: beneficiary name too long", ErrInvalidPayment)
	}
	benIBAN := accounts.NormalizeIBAN(input.BeneficiaryAccount)
	fromIBAN := accounts.NormalizeIBAN(input.FromAccount)
	if benIBAN == "" || fromIBAN == "" {
		return Payment{}, fmt.Errorf("%w: beneficiary and from accounts are required", ErrInvalidPayment)
	}
	if benIBAN == fromIBAN {
		return Payment{}, fmt.Errorf("%w: beneficiary and from accounts must differ", ErrInvalidPayment)
	}
	amountMinor, err := rates.ToMinor(input.Amount)
	if err != nil {
		return Payment{}, err
	}

	from, err := s.accounts.GetByIBAN(ctx, fromIBAN)
	if errors.Is(err, accounts.ErrNotFound) {
		return Payment{}, fmt.Errorf("%w: unknown from account", ErrInvalidPayment)
	}
	if err != nil {
		return Payment{}, err
	}
	if from.UserID != actor.UserID {
		return Payment{}, ErrNotOwner
	}

	currency := from.Currency
	if strings.TrimSpace(input.Currency) != "" {
		if currency, err = ledger.ParseCurrency(input.Currency); err != nil {
			return Payment{}, err
		}
	}
	debitMinor, err := s.rates.Convert(amountMinor, currency, from.Currency)
	if err != nil {
		return Payment{}, err
	}
	if debitMinor <= 0 {
		return Payment{}, fmt.Errorf("%w: amount too small after conversion", ErrInvalidPayment)
	}

	var beneficiaryID string
	switch ben, err := s.accounts.GetByIBAN(ctx, benIBAN); {
	case err == nil && ben.UserID == actor.UserID:
		return Payment{}, fmt.Errorf("%w: beneficiary account belongs to the payer", ErrInvalidPayment)
	case err == nil:
		beneficiaryID = ben.UserID
	case !errors.Is(err, accounts.ErrNotFound):
		return Payment{}, err
	}

	now := s.now()
	return Payment{
		ID:                 uuid.NewString(),
		UserID:             actor.UserID,
		BeneficiaryName:    name,
		BeneficiaryAccount: benIBAN,
		BeneficiaryID:      beneficiaryID,
		FromAccount:        fromIBAN,
		AmountMinor:        amountMinor,
		Currency:           currency,
		FromCurrency:       from.Currency,
		DebitMinor:         debitMinor,
		Details:            strings.TrimSpace(input.Details),
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Get returns a payment visible to the actor: its creator, its internal
// beneficiary or a payments operator.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if p.UserID != actor.UserID && p.BeneficiaryID != actor.UserID && !actor.Has(auth.CapPaymentsConfirm) {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

// ListMine returns the actor's payments, newest first.
func (s *Service) ListMine(ctx context.Context, actor auth.Principal) ([]Payment, error) {
	return s.repo.ListByUser(ctx, actor.UserID)
}

// RequestReversal opens a verification that, once accepted, refunds a
// confirmed payment.
func (s *Service) RequestReversal(ctx context.Context, actor auth.Principal, id string) (verification.Verification, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return verification.Verification{}, err
	}
	if p.UserID != actor.UserID && !actor.Has(auth.CapPaymentsConfirm) {
		return verification.Verification{}, verification.ErrNotAllowed
	}
	if p.Status != StatusConfirmed {
		return verification.Verification{}, fmt.Errorf("%w: only confirmed payments can be reverted", ErrInvalidState)
	}
	return s.verifications.Create(ctx, verification.CreateInput{
		Action:     verification.ActionPaymentReverted,
		TargetID:   p.ID,
		CreatedBy:  actor.UserID,
		AssigneeID: actor.UserID,
		NotifyTo:   actor.UserID,
	})
}

// Decide answers a payment verification. Accepting a new payment captures it
// in the ledger; if the ledger refuses, both the payment and the
// verification end rejected. Accepting a reversal refunds the payment.
func (s *Service) Decide(ctx context.Context, actor auth.Principal, d verification.Decision) (verification.Verification, error) {
	var p Payment
	v, err := s.verifications.Submit(ctx, d, verification.Policy{
		Actions: paymentActions,
		Authorize: func(ctx context.Context, v verification.Verification) error {
			var err error
			if p, err = s.repo.Get(ctx, v.TargetID); err != nil {
				return err
			}
			if v.AssigneeID != "" && v.AssigneeID == actor.UserID {
				return nil
			}
			if actor.Has(auth.CapPaymentsConfirm) {
				return nil
			}
			return verification.ErrNotAllowed
		},
		Apply: func(ctx context.Context, v verification.Verification, accept bool) error {
			if v.Action == verification.ActionPaymentReverted {
				return s.applyReversal(ctx, p, accept)
			}
			return s.applyCapture(ctx, p, accept)
		},
		Refused: func(ctx context.Context, v verification.Verification, _ error) error {
			if v.Action != verification.ActionPaymentCreated || p.Status != StatusPending {
				return nil
			}
			return s.setStatus(ctx, p, StatusRejected)
		},
	})
	if err == nil && d.Accept && v.Action == verification.ActionPaymentCreated {
		s.notifyBeneficiary(ctx, p)
	}
	return v, err
}

// applyCapture posts an accepted payment and confirms it. Both writes go
// through ctx, so they commit together with the decision or not at all.
func (s *Service) applyCapture(ctx context.Context, p Payment, accept bool) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: payment is %s", ErrInvalidState, p.Status)
	}
	if !accept {
		return s.setStatus(ctx, p, StatusRejected)
	}

	_, err := s.events.IngestEvent(ctx, ledger.PaymentEvent{
		IntentID:    p.ID,
		PayerUserID: p.UserID,
		PayeeUserID: p.Payee(),
		AmountMinor: p.DebitMinor,
		Currency:    p.FromCurrency,
		Kind:        ledger.EventCaptured,
		Description: describe("payment", p),
	})
	if err != nil {
		return err
	}
	return s.setStatus(ctx, p, StatusConfirmed)
}

func (s *Service) notifyBeneficiary(ctx context.Context, p Payment) {
	if p.BeneficiaryID == "" || s.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:        notification.KindPaymentReceived,
		Destination: p.BeneficiaryID,
		Subject:     "Payment received",
		Body:        fmt.Sprintf("You received %s %s from %s", decimal.New(p.DebitMinor, -2).StringFixed(2), p.FromCurrency, p.FromAccount),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("payment notification failed", slog.String("payment_id", p.ID), slog.Any("error", err))
	}
}

func (s *Service) applyReversal(ctx context.Context, p Payment, accept bool) error {
	if !accept {
		return nil
	}
	if p.Status != StatusConfirmed {
		return fmt.Errorf("%w: payment is %s", ErrInvalidState, p.Status)
	}
	_, err := s.events.IngestEvent(ctx, ledger.PaymentEvent{
		IntentID:    ReversalCorrelationID(p.ID),
		PayerUserID: p.UserID,
		PayeeUserID: p.Payee(),
		AmountMinor: p.DebitMinor,
		Currency:    p.FromCurrency,
		Kind:        ledger.EventRefundSucceeded,
		Description: describe("reversal", p),
	})
	if err != nil {
		return err
	}
	return s.setStatus(ctx, p, StatusReverted)
}

func (s *Service) setStatus(ctx context.Context, p Payment, status Status) error {
	if err := s.repo.UpdateStatus(ctx, p.ID, status, s.now()); err != nil {
		return err
	}
	s.logger.Info("payment status changed",
		slog.String("payment_id", p.ID),
		slog.String("from", string(p.Status)),
		slog.String("to", string(status)),
	)
	return nil
}

// Verifications lists payment verifications.
func (s *Service) Verifications(ctx context.Context, filter verification.Filter) ([]verification.Verification, int, error) {
	filter.Actions = paymentActions
	return s.verifications.List(ctx, filter)
}

// ProviderWebhook is an already authenticated notification from the payment
// provider. Amount is in major units.
type ProviderWebhook struct {
	IntentID      string
	UserID        string
	BeneficiaryID string
	Amount        decimal.Decimal
	Currency      string
	Type          string
	Description   string
}

// HandleWebhook forwards a provider event to the ledger.
func (s *Service) HandleWebhook(ctx context.Context, hook ProviderWebhook) (ledger.ApplyStatus, error) {
	amountMinor, err := rates.ToMinor(hook.Amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrInvalidEvent, err)
	}
	currency, err := ledger.ParseCurrency(hook.Currency)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrInvalidEvent, err)
	}
	return s.events.IngestEvent(ctx, ledger.PaymentEvent{
		IntentID:    strings.TrimSpace(hook.IntentID),
		PayerUserID: strings.TrimSpace(hook.UserID),
		PayeeUserID: strings.TrimSpace(hook.BeneficiaryID),
		AmountMinor: amountMinor,
		Currency:    currency,
		Kind:        ledger.EventKind(strings.ToLower(strings.TrimSpace(hook.Type))),
		Description: hook.Description,
	})
}

func describe(kind string, p Payment) string {
	desc := fmt.Sprintf("%s to %s (%s)", kind, p.BeneficiaryName, p.BeneficiaryAccount)
	if p.Details != "" {
		desc += ": " + p.Details
	}
	return desc
}
