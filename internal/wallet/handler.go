package wallet

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	Currency     string `json:"currency"`
	BalanceMinor int64  `json:"balance_minor"`
}

type overviewResponse struct {
	WalletID  string            `json:"wallet_id"`
	UserID    string            `json:"user_id"`
	CreatedAt time.Time         `json:"created_at"`
	Balances  []balanceResponse `json:"balances"`
	AsOf      time.Time         `json:"as_of"`
}

type entryResponse struct {
	ID                  string    `json:"id"`
	WalletID            string    `json:"wallet_id"`
	AmountMinor         int64     `json:"amount_minor"`
	Currency            string    `json:"currency"`
	Type                string    `json:"type"`
	Account             string    `json:"account"`
	CounterpartyAccount string    `json:"counterparty_account"`
	Description         string    `json:"description"`
	CorrelationID       string    `json:"correlation_id"`
	CreatedAt           time.Time `json:"created_at"`
}

type eventRequest struct {
	IntentID    string `json:"intent_id"`
	PayerUserID string `json:"payer_user_id"`
	PayeeUserID string `json:"payee_user_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// Overview returns balances for the user in the path. "me" resolves to the caller.
func (h *Handler) Overview(c *fiber.Ctx) error {
	userID, err := targetUser(c)
	if err != nil {
		return err
	}
	o, err := h.service.Overview(c.UserContext(), userID)
	if err != nil {
		return err
	}
	balances := make([]balanceResponse, len(o.Balances))
	for i, b := range o.Balances {
		balances[i] = balanceResponse{Currency: string(b.Currency), BalanceMinor: b.BalanceMinor}
	}
	return c.Status(http.StatusOK).JSON(overviewResponse{
		WalletID:  o.WalletID,
		UserID:    o.UserID,
		CreatedAt: o.CreatedAt,
		Balances:  balances,
		AsOf:      o.AsOf,
	})
}

// Entries returns the raw ledger of the user in the path.
func (h *Handler) Entries(c *fiber.Ctx) error {
	userID, err := targetUser(c)
	if err != nil {
		return err
	}
	filter := ledger.EntryFilter{CorrelationID: c.Query("correlation_id")}
	switch account := ledger.Account(strings.ToLower(c.Query("account"))); account {
	case "":
	case ledger.Cash, ledger.Clearing:
		filter.Account = account
	default:
		return fiber.NewError(http.StatusBadRequest, "account must be cash or clearing")
	}

	entries, err := h.service.Entries(c.UserContext(), userID, filter)
	if err != nil {
		return err
	}
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = entryResponse{
			ID:                  e.ID,
			WalletID:            e.WalletID,
			AmountMinor:         e.AmountMinor,
			Currency:            string(e.Currency),
			Type:                string(e.Type),
			Account:             string(e.Account),
			CounterpartyAccount: string(e.CounterpartyAccount),
			Description:         e.Description,
			CorrelationID:       e.CorrelationID,
			CreatedAt:           e.CreatedAt,
		}
	}
	return c.Status(http.StatusOK).JSON(out)
}

// IngestEvent applies a payment event delivered by a trusted internal caller.
func (h *Handler) IngestEvent(c *fiber.Ctx) error {
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event", "message": err.Error()})
	}
	status, err := h.service.IngestEvent(c.UserContext(), ledger.PaymentEvent{
		IntentID:    req.IntentID,
		PayerUserID: req.PayerUserID,
		PayeeUserID: req.PayeeUserID,
		AmountMinor: req.AmountMinor,
		Currency:    ledger.Currency(strings.ToUpper(req.Currency)),
		Kind:        ledger.EventKind(req.Kind),
		Description: req.Description,
	})
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		switch {
		case errors.As(err, &insufficient):
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error":           "insufficient_funds",
				"available_minor": insufficient.AvailableMinor,
			})
		case errors.Is(err, ledger.ErrInvalidEvent):
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event", "message": err.Error()})
		default:
			return err
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": status})
}

// targetUser resolves the :userId parameter. Callers may read their own
// wallet; other wallets require the payments confirmation capability.
func targetUser(c *fiber.Ctx) (string, error) {
	p, ok := auth.FromCtx(c)
	if !ok {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	userID := c.Params("userId")
	if userID == "" || userID == "me" {
		return p.UserID, nil
	}
	if userID != p.UserID && !p.Has(auth.CapPaymentsConfirm) {
		return "", fiber.NewError(http.StatusForbidden, "cannot read another user's wallet")
	}
	return userID, nil
}
