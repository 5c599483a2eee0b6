package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bizbank/bizbank/internal/funding"
	"github.com/bizbank/bizbank/internal/wallet"
)

// RegisterWalletRoutes wires balance, ledger and top-up endpoints.
// userId may be "me".
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, topUps *funding.Handler, idempotent fiber.Handler) {
	group := r.Group("/wallets")
	group.Get("/:userId", h.Overview)
	group.Get("/:userId/ledger", h.Entries)
	group.Post("/:userId/topup", idempotent, topUps.TopUp)
}
