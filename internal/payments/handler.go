package payments

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/ledger"
	"github.com/bizbank/bizbank/internal/verification"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	BeneficiaryName    string          `json:"beneficiary_name"`
	BeneficiaryAccount string          `json:"beneficiary_account"`
	FromAccount        string          `json:"from_account"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Details            string          `json:"details"`
}

type webhookRequest struct {
	IntentID      string          `json:"intent_id"`
	UserID        string          `json:"user_id"`
	BeneficiaryID string          `json:"beneficiary_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Type          string          `json:"type"`
	Description   string          `json:"description"`
}

type paymentResponse struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	BeneficiaryName    string    `json:"beneficiary_name"`
	BeneficiaryAccount string    `json:"beneficiary_account"`
	BeneficiaryID      string    `json:"beneficiary_id,omitempty"`
	FromAccount        string    `json:"from_account"`
	Amount             string    `json:"amount"`
	Currency           string    `json:"currency"`
	FromCurrency       string    `json:"from_currency"`
	DebitAmount        string    `json:"debit_amount"`
	Details            string    `json:"details,omitempty"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:                 p.ID,
		UserID:             p.UserID,
		BeneficiaryName:    p.BeneficiaryName,
		BeneficiaryAccount: p.BeneficiaryAccount,
		BeneficiaryID:      p.BeneficiaryID,
		FromAccount:        p.FromAccount,
		Amount:             decimal.New(p.AmountMinor, -2).StringFixed(2),
		Currency:           string(p.Currency),
		FromCurrency:       string(p.FromCurrency),
		DebitAmount:        decimal.New(p.DebitMinor, -2).StringFixed(2),
		Details:            p.Details,
		Status:             string(p.Status),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func principal(c *fiber.Ctx) (auth.Principal, error) {
	p, ok := auth.FromCtx(c)
	if !ok {
		return auth.Principal{}, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return p, nil
}

// Mine lists the caller's payments.
func (h *Handler) Mine(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	list, err := h.service.ListMine(c.UserContext(), p)
	if err != nil {
		return err
	}
	out := make([]paymentResponse, len(list))
	for i, pay := range list {
		out[i] = toResponse(pay)
	}
	return c.JSON(out)
}

// Create submits a payment and returns the verification confirming it.
func (h *Handler) Create(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	payment, v, err := h.service.Create(c.UserContext(), p, CreateInput{
		BeneficiaryName:    req.BeneficiaryName,
		BeneficiaryAccount: req.BeneficiaryAccount,
		FromAccount:        req.FromAccount,
		Amount:             req.Amount,
		Currency:           req.Currency,
		Details:            req.Details,
	})
	if err != nil {
		return err
	}
	c.Location("/api/v1/payments/" + payment.ID)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"payment":      toResponse(payment),
		"verification": verification.ToResponse(v),
	})
}

// Get returns a payment.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	payment, err := h.service.Get(c.UserContext(), p, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(payment))
}

// Revert opens a reversal verification for a confirmed payment.
func (h *Handler) Revert(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	v, err := h.service.RequestReversal(c.UserContext(), p, c.Params("id"))
	if err != nil {
		return err
	}
	c.Location("/api/v1/payments/verifications/" + v.ID)
	return c.Status(http.StatusAccepted).JSON(verification.ToResponse(v))
}

// Decide answers a payment verification.
func (h *Handler) Decide(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req verification.DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v, err := h.service.Decide(c.UserContext(), p, verification.Decision{ID: c.Params("id"), Code: req.Code, Accept: req.Accept})
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		if errors.As(err, &insufficient) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error":           "insufficient_funds",
				"available_minor": insufficient.AvailableMinor,
				"verification":    verification.ToResponse(v),
			})
		}
		return err
	}
	return c.JSON(verification.ToResponse(v))
}

// Verifications lists payment verifications for operators.
func (h *Handler) Verifications(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	filter := verification.Filter{
		Status:   verification.Status(c.Query("status")),
		TargetID: c.Query("target_id"),
		Query:    c.Query("q"),
		Skip:     c.QueryInt("skip", 0),
		Take:     c.QueryInt("take", 0),
	}
	if p.Has(auth.CapPaymentsConfirm) {
		filter.AssigneeID = c.Query("assignee_id")
	} else {
		filter.AssigneeID = p.UserID
	}
	items, total, err := h.service.Verifications(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(verification.ToListResponse(items, total, filter))
}

// Webhook applies a provider event. The route is guarded by the internal key.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	var req webhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid_event", "message": err.Error()})
	}
	status, err := h.service.HandleWebhook(c.UserContext(), ProviderWebhook{
		IntentID:      req.IntentID,
		UserID:        req.UserID,
		BeneficiaryID: req.BeneficiaryID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Type:          req.Type,
		Description:   req.Description,
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
	return c.JSON(fiber.Map{"status": status})
}
