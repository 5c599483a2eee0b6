package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/ledger"
)

// Handler exposes HTTP endpoints for wallet funding.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// TopUp credits the wallet of the user in the path.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	p, ok := auth.FromCtx(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if !p.Has(auth.CapPaymentsConfirm) {
		return fiber.NewError(http.StatusForbidden, "missing payments:confirm capability")
	}

	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	result, err := h.service.TopUp(c.UserContext(), TopUpInput{
		UserID:        c.Params("userId"),
		AmountMinor:   req.AmountMinor,
		Currency:      req.Currency,
		CorrelationID: req.CorrelationID,
		Description:   req.Description,
		RequestedBy:   p.UserID,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidRequest) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
		}
		return err
	}

	if result.Status == ledger.StatusIdempotent {
		return c.Status(http.StatusOK).JSON(TopUpResponse{
			Status:        string(result.Status),
			CorrelationID: result.CorrelationID,
			BalanceMinor:  result.BalanceMinor,
		})
	}
	return c.Status(http.StatusCreated).JSON(TopUpResponse{
		Status:        string(result.Status),
		CorrelationID: result.CorrelationID,
		WalletID:      result.WalletID,
		UserID:        result.UserID,
		Currency:      string(result.Currency),
		BalanceMinor:  result.BalanceMinor,
	})
}
