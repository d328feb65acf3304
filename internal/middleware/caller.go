package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token-distributor/internal/address"
	"github.com/congo-pay/token-distributor/internal/auth"
)

const (
	// CallerAddressHeader carries the address the caller acts as.
	CallerAddressHeader = "X-Caller-Address"
	callerLocal         = "caller"
)

// CallerAuth authenticates the caller address with a bearer API key and
// stores it for handlers to read with Caller.
func CallerAuth(ring *auth.KeyRing) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		apiKey := strings.TrimSpace(authz[len("Bearer "):])

		addr, err := address.Parse(c.Get(CallerAddressHeader))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "missing or invalid "+CallerAddressHeader)
		}
		if err := ring.Authenticate(addr, apiKey); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
		}

		c.Locals(callerLocal, addr)
		return c.Next()
	}
}

// Caller returns the authenticated caller set by CallerAuth.
func Caller(c *fiber.Ctx) (common.Address, bool) {
	addr, ok := c.Locals(callerLocal).(common.Address)
	return addr, ok
}
