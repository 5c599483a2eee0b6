package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/payments"
	"github.com/bizbank/bizbank/internal/users"
	"github.com/bizbank/bizbank/internal/wallet"
)

// RegisterInternalRoutes wires endpoints called by trusted services with the
// shared internal key. They must be registered before the JWT group.
func RegisterInternalRoutes(r fiber.Router, internalKey fiber.Handler, events *wallet.Handler, pays *payments.Handler, people *users.Handler) {
	r.Post("/payments/webhook", internalKey, pays.Webhook)

	internal := r.Group("/internal", internalKey)
	internal.Post("/events/payment", events.IngestEvent)
	internal.Post("/credentials/verify", people.VerifyCredentials)
}
