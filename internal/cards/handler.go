package cards

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/verification"
)

// Handler exposes card HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a card HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Type              string `json:"type"`
	Name              string `json:"name"`
	SingleLimitMinor  int64  `json:"single_limit_minor"`
	MonthlyLimitMinor int64  `json:"monthly_limit_minor"`
}

type updateRequest struct {
	Type              *string  `json:"type"`
	Name              *string  `json:"name"`
	SingleLimitMinor  *int64   `json:"single_limit_minor"`
	MonthlyLimitMinor *int64   `json:"monthly_limit_minor"`
	Options           []string `json:"options"`
	Printed           *bool    `json:"printed"`
	AssignedUserID    *string  `json:"assigned_user_id"`
}

type assignRequest struct {
	UserID string `json:"user_id"`
}

type verificationRequest struct {
	Action   string `json:"action"`
	TargetID string `json:"target_id"`
}

type cardResponse struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Name              string    `json:"name"`
	SingleLimitMinor  int64     `json:"single_limit_minor"`
	MonthlyLimitMinor int64     `json:"monthly_limit_minor"`
	AssignedUserID    string    `json:"assigned_user_id,omitempty"`
	Options           []string  `json:"options"`
	Printed           bool      `json:"printed"`
	Terminated        bool      `json:"terminated"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type cardWithVerification struct {
	Card         cardResponse           `json:"card"`
	Verification *verification.Response `json:"verification"`
}

func toResponse(c Card) cardResponse {
	return cardResponse{
		ID:                c.ID,
		Type:              string(c.Type),
		Name:              c.Name,
		SingleLimitMinor:  c.SingleLimitMinor,
		MonthlyLimitMinor: c.MonthlyLimitMinor,
		AssignedUserID:    c.AssignedUserID,
		Options:           c.Options.Names(),
		Printed:           c.Printed,
		Terminated:        c.Terminated,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func principal(c *fiber.Ctx) (auth.Principal, error) {
	p, ok := auth.FromCtx(c)
	if !ok {
		return auth.Principal{}, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return p, nil
}

func manager(c *fiber.Ctx) (auth.Principal, error) {
	p, err := principal(c)
	if err != nil {
		return p, err
	}
	if !p.Has(auth.CapCardsManage) {
		return p, fiber.NewError(http.StatusForbidden, "missing cards:manage capability")
	}
	return p, nil
}

// Create issues a card.
func (h *Handler) Create(c *fiber.Ctx) error {
	if _, err := principal(c); err != nil {
		return err
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	card, err := h.service.Create(c.UserContext(), CreateInput{
		Type:              req.Type,
		Name:              req.Name,
		SingleLimitMinor:  req.SingleLimitMinor,
		MonthlyLimitMinor: req.MonthlyLimitMinor,
	})
	if err != nil {
		return err
	}
	c.Location("/api/v1/cards/" + card.ID)
	return c.Status(http.StatusCreated).JSON(toResponse(card))
}

// List returns all cards.
func (h *Handler) List(c *fiber.Ctx) error {
	if _, err := manager(c); err != nil {
		return err
	}
	list, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]cardResponse, len(list))
	for i, card := range list {
		out[i] = toResponse(card)
	}
	return c.JSON(out)
}

// Get returns a single card.
func (h *Handler) Get(c *fiber.Ctx) error {
	if _, err := principal(c); err != nil {
		return err
	}
	card, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(card))
}

// Assign attaches the card to a user and opens the acceptance verification.
func (h *Handler) Assign(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req assignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	card, v, err := h.service.Assign(c.UserContext(), p, c.Params("id"), req.UserID)
	if err != nil {
		return err
	}
	resp := verification.IncludeCode(v)
	return c.JSON(cardWithVerification{Card: toResponse(card), Verification: &resp})
}

// Update changes card settings and may open a printing verification.
func (h *Handler) Update(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.AssignedUserID != nil {
		return fiber.NewError(http.StatusBadRequest, "assigned user cannot be changed via update")
	}
	card, v, err := h.service.Update(c.UserContext(), p, c.Params("id"), UpdateInput{
		Type:              req.Type,
		Name:              req.Name,
		SingleLimitMinor:  req.SingleLimitMinor,
		MonthlyLimitMinor: req.MonthlyLimitMinor,
		Options:           req.Options,
		Printed:           req.Printed,
	})
	if err != nil {
		return err
	}
	out := cardWithVerification{Card: toResponse(card)}
	if v != nil {
		resp := verification.IncludeCode(*v)
		out.Verification = &resp
	}
	return c.JSON(out)
}

// RequestTermination opens a termination verification.
func (h *Handler) RequestTermination(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	v, err := h.service.RequestTermination(c.UserContext(), p, c.Params("id"))
	if err != nil {
		return err
	}
	c.Location("/api/v1/cards/verifications/" + v.ID)
	return c.Status(http.StatusAccepted).JSON(verification.IncludeCode(v))
}

// CreateVerification opens a card verification of an explicit kind.
func (h *Handler) CreateVerification(c *fiber.Ctx) error {
	p, err := manager(c)
	if err != nil {
		return err
	}
	var req verificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v, err := h.service.RequestVerification(c.UserContext(), p, verification.Action(req.Action), req.TargetID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(verification.IncludeCode(v))
}

// Verifications lists card verifications.
func (h *Handler) Verifications(c *fiber.Ctx) error {
	if _, err := manager(c); err != nil {
		return err
	}
	filter := verification.Filter{
		Status:     verification.Status(c.Query("status")),
		TargetID:   c.Query("target_id"),
		AssigneeID: c.Query("assignee_id"),
		CreatedBy:  c.Query("created_by"),
		Query:      c.Query("q"),
		Skip:       c.QueryInt("skip", 0),
		Take:       c.QueryInt("take", 0),
	}
	items, total, err := h.service.Verifications(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(verification.ToListResponse(items, total, filter))
}

// Decide answers a card verification.
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
		return err
	}
	return c.JSON(verification.ToResponse(v))
}
