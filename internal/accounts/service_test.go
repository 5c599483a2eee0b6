package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/bizbank/bizbank/internal/ledger"
)

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	account, err := svc.Create(ctx, CreateInput{OwnerID: "user-1", IBAN: "pl61 1090-1014 0000 0712 1981 2874", Currency: "pln"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if account.IBAN != "PL61109010140000071219812874" || account.Currency != ledger.PLN {
		t.Fatalf("unexpected account %+v", account)
	}

	if _, err := svc.Create(ctx, CreateInput{OwnerID: "user-2", IBAN: "PL61109010140000071219812874", Currency: "PLN"}); !errors.Is(err, ErrIBANTaken) {
		t.Fatalf("expected iban taken, got %v", err)
	}

	found, err := svc.GetByIBAN(ctx, "pl61 1090 1014 0000 0712 1981 2874")
	if err != nil || found.ID != account.ID {
		t.Fatalf("expected lookup by formatted iban, got %+v %v", found, err)
	}
}

func TestCreateRejectsEmptyIBANAndCurrency(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	if _, err := svc.Create(context.Background(), CreateInput{OwnerID: "user-1", IBAN: " - ", Currency: "EUR"}); !errors.Is(err, ErrInvalidIBAN) {
		t.Fatalf("expected invalid iban, got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateInput{OwnerID: "user-1", IBAN: "DE89370400440532013000", Currency: "CHF"}); err == nil {
		t.Fatalf("expected unsupported currency error")
	}
}

func TestDeleteRequiresOwner(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	account, err := svc.Create(ctx, CreateInput{OwnerID: "user-1", IBAN: "DE89370400440532013000", Currency: "EUR"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, "user-2", account.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := svc.Delete(ctx, "user-1", account.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ := svc.ListByOwner(ctx, "user-1")
	if len(list) != 0 {
		t.Fatalf("expected no accounts left, got %d", len(list))
	}
}
