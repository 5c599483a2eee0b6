package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/cards"
	"github.com/bizbank/bizbank/internal/users"
)

// RegisterCardRoutes wires card endpoints.
func RegisterCardRoutes(r fiber.Router, h *cards.Handler, decisionLimit fiber.Handler) {
	group := r.Group("/cards")
	group.Get("/verifications", h.Verifications)
	group.Post("/verifications", h.CreateVerification)
	group.Post("/verifications/:id/decision", decisionLimit, h.Decide)
	group.Post("/", h.Create)
	group.Get("/", h.List)
	group.Get("/:id", h.Get)
	group.Put("/:id", h.Update)
	group.Post("/:id/assign", h.Assign)
	group.Post("/:id/request-termination", h.RequestTermination)
}

// RegisterUserRoutes wires invitation endpoints.
func RegisterUserRoutes(r fiber.Router, h *users.Handler, decisionLimit fiber.Handler) {
	group := r.Group("/users")
	group.Post("/verifications/:id/decision", decisionLimit, h.Decide)
	group.Post("/", h.Invite)
	group.Get("/:id", h.Get)
	group.Post("/:id/verifications", h.Reinvite)
}
