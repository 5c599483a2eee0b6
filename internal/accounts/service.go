package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bizbank/bizbank/internal/ledger"
)

// Service manages the IBAN registry.
type Service struct {
	repo Repository
}

// NewService builds an account service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput captures data required to register an account.
type CreateInput struct {
	OwnerID  string
	IBAN     string
	Currency string
}

// Create registers an IBAN for its owner.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	iban := NormalizeIBAN(input.IBAN)
	if iban == "" {
		return Account{}, ErrInvalidIBAN
	}
	currency, err := ledger.ParseCurrency(input.Currency)
	if err != nil {
		return Account{}, err
	}
	account := Account{
		ID:        uuid.NewString(),
		UserID:    input.OwnerID,
		IBAN:      iban,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// ListByOwner returns the caller's accounts.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// GetByIBAN resolves an IBAN in any formatting.
func (s *Service) GetByIBAN(ctx context.Context, iban string) (Account, error) {
	normalized := NormalizeIBAN(iban)
	if normalized == "" {
		return Account{}, ErrNotFound
	}
	return s.repo.GetByIBAN(ctx, normalized)
}

// Delete removes an account owned by ownerID.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if account.UserID != ownerID {
		return ErrNotOwner
	}
	return s.repo.Delete(ctx, id)
}
