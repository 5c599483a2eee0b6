package accounts

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/auth"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	IBAN     string `json:"iban"`
	Currency string `json:"currency"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IBAN      string    `json:"iban"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(a Account) accountResponse {
	return accountResponse{ID: a.ID, UserID: a.UserID, IBAN: a.IBAN, Currency: string(a.Currency), CreatedAt: a.CreatedAt}
}

// Mine lists the caller's accounts.
func (h *Handler) Mine(c *fiber.Ctx) error {
	p, ok := auth.FromCtx(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	list, err := h.service.ListByOwner(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	out := make([]accountResponse, len(list))
	for i, a := range list {
		out[i] = toResponse(a)
	}
	return c.JSON(out)
}

// Create registers an account for the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	p, ok := auth.FromCtx(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.service.Create(c.UserContext(), CreateInput{OwnerID: p.UserID, IBAN: req.IBAN, Currency: req.Currency})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(account))
}

// Delete removes one of the caller's accounts.
func (h *Handler) Delete(c *fiber.Ctx) error {
	p, ok := auth.FromCtx(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if err := h.service.Delete(c.UserContext(), p.UserID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
