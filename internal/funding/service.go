package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bizbank/bizbank/internal/ledger"
	"github.com/bizbank/bizbank/internal/metrics"
)

// Service credits wallets from outside the ledger.
type Service struct {
	ledger  ledger.Ledger
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewService prepares a funding service.
func NewService(ledgerBackend ledger.Ledger, rec metrics.Recorder, logger *slog.Logger) (*Service, error) {
	if ledgerBackend == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if rec == nil {
		rec = metrics.NoOp{}
	}
	return &Service{ledger: ledgerBackend, metrics: rec, logger: logger}, nil
}

// TopUpInput captures the data for a top-up.
type TopUpInput struct {
	UserID        string
	AmountMinor   int64
	Currency      string
	CorrelationID string
	Description   string
	RequestedBy   string
}

// TopUp records a cash credit for the user. Retrying with the same
// correlation id returns the idempotent status without posting again.
func (s *Service) TopUp(ctx context.Context, input TopUpInput) (ledger.TopUpResult, error) {
	currency, err := ledger.ParseCurrency(input.Currency)
	if err != nil {
		s.metrics.TopUp("invalid_request")
		return ledger.TopUpResult{}, fmt.Errorf("%w: %v", ledger.ErrInvalidRequest, err)
	}

	res, err := s.ledger.TopUp(ctx, ledger.TopUpInput{
		UserID:        input.UserID,
		AmountMinor:   input.AmountMinor,
		Currency:      currency,
		CorrelationID: strings.TrimSpace(input.CorrelationID),
		Description:   input.Description,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ledger.ErrInvalidRequest) {
			outcome = "invalid_request"
		}
		s.metrics.TopUp(outcome)
		s.logger.Warn("top-up rejected",
			slog.String("user_id", input.UserID),
			slog.String("requested_by", input.RequestedBy),
			slog.Any("error", err),
		)
		return ledger.TopUpResult{}, err
	}

	s.metrics.TopUp(string(res.Status))
	s.logger.Info("top-up handled",
		slog.String("user_id", res.UserID),
		slog.String("wallet_id", res.WalletID),
		slog.String("correlation_id", res.CorrelationID),
		slog.Int64("amount_minor", input.AmountMinor),
		slog.String("currency", string(currency)),
		slog.String("status", string(res.Status)),
		slog.String("requested_by", input.RequestedBy),
	)
	return res, nil
}
