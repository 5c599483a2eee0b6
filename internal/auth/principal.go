package auth

import "github.com/gofiber/fiber/v2"

// Capabilities granted by the role service and carried in access tokens.
const (
	CapPaymentsConfirm = "payments:confirm"
	CapCardsManage     = "cards:manage"
	CapUsersManage     = "users:manage"
)

const principalKey = "principal"

// Principal is the authenticated caller.
type Principal struct {
	UserID       string
	DisplayName  string
	Capabilities []string
}

// Has reports whether the principal holds capability.
func (p Principal) Has(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// SetPrincipal stores p on the request.
func SetPrincipal(c *fiber.Ctx, p Principal) {
	c.Locals(principalKey, p)
}

// FromCtx returns the principal stored by the JWT middleware.
func FromCtx(c *fiber.Ctx) (Principal, bool) {
	p, ok := c.Locals(principalKey).(Principal)
	return p, ok && p.UserID != ""
}
