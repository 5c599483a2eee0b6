package users

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/auth"
	"github.com/bizbank/bizbank/internal/verification"
)

// Handler exposes user endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a user HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type inviteRequest struct {
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	DesiredRoleID string `json:"desired_role_id"`
}

type reinviteRequest struct {
	DesiredRoleID string `json:"desired_role_id"`
}

type decisionRequest struct {
	Code        string `json:"code"`
	Accept      bool   `json:"accept"`
	NewPassword string `json:"new_password"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	RoleID      string    `json:"role_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toResponse(u User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		RoleID:      u.RoleID,
		Status:      string(u.Status),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func principal(c *fiber.Ctx) (auth.Principal, error) {
	p, ok := auth.FromCtx(c)
	if !ok {
		return auth.Principal{}, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return p, nil
}

// Invite creates a pending user. The code travels only by notification.
func (h *Handler) Invite(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req inviteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, v, err := h.service.Invite(c.UserContext(), p, InviteInput{
		Email:         req.Email,
		DisplayName:   req.DisplayName,
		DesiredRoleID: req.DesiredRoleID,
	})
	if err != nil {
		return err
	}
	c.Location("/api/v1/users/" + user.ID)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user":         toResponse(user),
		"verification": verification.ToResponse(v),
	})
}

// Reinvite issues a new acceptance code.
func (h *Handler) Reinvite(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req reinviteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	v, err := h.service.Reinvite(c.UserContext(), p, c.Params("id"), req.DesiredRoleID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(verification.ToResponse(v))
}

// Get returns a user.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	user, err := h.service.Get(c.UserContext(), p, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(user))
}

// Decide answers the caller's own invitation.
func (h *Handler) Decide(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v, err := h.service.Decide(c.UserContext(), p, DecisionInput{
		ID:          c.Params("id"),
		Code:        req.Code,
		Accept:      req.Accept,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		return err
	}
	return c.JSON(verification.ToResponse(v))
}

// VerifyCredentials checks a password for the token issuer. The route is
// guarded by the internal key.
func (h *Handler) VerifyCredentials(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": user.ID, "display_name": user.DisplayName, "role_id": user.RoleID})
}
