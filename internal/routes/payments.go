package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/accounts"
	"github.com/bizbank/bizbank/internal/payments"
)

// RegisterPaymentRoutes wires payment endpoints. Static segments come before
// /:id so that they are not captured as ids.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, decisionLimit, idempotent fiber.Handler) {
	group := r.Group("/payments")
	group.Get("/my", h.Mine)
	group.Get("/verifications", h.Verifications)
	group.Post("/verifications/:id/decision", decisionLimit, h.Decide)
	group.Post("/", idempotent, h.Create)
	group.Get("/:id", h.Get)
	group.Post("/:id/revert", h.Revert)
}

// RegisterAccountRoutes wires bank account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *accounts.Handler) {
	group := r.Group("/accounts")
	group.Get("/my", h.Mine)
	group.Post("/", h.Create)
	group.Delete("/:id", h.Delete)
}
