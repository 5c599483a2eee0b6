package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bizbank/bizbank/internal/ledger"
	"github.com/bizbank/bizbank/internal/metrics"
)

// Service exposes wallet queries and event ingestion backed by the ledger.
type Service struct {
	ledger  ledger.Ledger
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(l ledger.Ledger, rec metrics.Recorder, logger *slog.Logger) *Service {
	if rec == nil {
		rec = metrics.NoOp{}
	}
	return &Service{ledger: l, metrics: rec, logger: logger}
}

// Overview returns the user's wallet and balances.
func (s *Service) Overview(ctx context.Context, userID string) (Overview, error) {
	w, err := s.ledger.Wallet(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	balances, err := s.ledger.Balances(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		WalletID:  w.ID,
		UserID:    w.UserID,
		CreatedAt: w.CreatedAt,
		Balances:  balances,
		AsOf:      time.Now().UTC(),
	}, nil
}

// Entries lists the user's ledger entries in posting order.
func (s *Service) Entries(ctx context.Context, userID string, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	return s.ledger.Entries(ctx, userID, filter)
}

// IngestEvent applies an external payment event to the ledger.
func (s *Service) IngestEvent(ctx context.Context, evt ledger.PaymentEvent) (ledger.ApplyStatus, error) {
	status, err := s.ledger.ApplyPaymentEvent(ctx, evt)

	outcome := string(status)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrInsufficientFunds):
		outcome = "insufficient_funds"
	case errors.Is(err, ledger.ErrInvalidEvent):
		outcome = "invalid_event"
	default:
		outcome = "error"
	}
	s.metrics.LedgerEvent(string(evt.Kind), outcome)

	attrs := []any{
		slog.String("intent_id", evt.IntentID),
		slog.String("kind", string(evt.Kind)),
		slog.Int64("amount_minor", evt.AmountMinor),
		slog.String("currency", string(evt.Currency)),
		slog.String("outcome", outcome),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		s.logger.Warn("payment event not applied", attrs...)
		return "", err
	}
	s.logger.Info("payment event handled", attrs...)
	return status, nil
}
