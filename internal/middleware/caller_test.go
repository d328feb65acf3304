package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token-distributor/internal/auth"
)

func TestCallerAuth(t *testing.T) {
	owner := common.HexToAddress("0x2000000000000000000000000000000000000002")
	ring := auth.NewKeyRing()
	if err := ring.Register(owner, "owner-secret-key-0001"); err != nil {
		t.Fatalf("register: %v", err)
	}

	app := fiber.New()
	app.Use(CallerAuth(ring))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		addr, ok := Caller(c)
		if !ok {
			return fiber.NewError(fiber.StatusInternalServerError, "caller missing")
		}
		return c.SendString(addr.Hex())
	})

	cases := []struct {
		name   string
		addr   string
		bearer string
		status int
	}{
		{"valid", owner.Hex(), "Bearer owner-secret-key-0001", fiber.StatusOK},
		{"missing bearer", owner.Hex(), "", fiber.StatusUnauthorized},
		{"wrong key", owner.Hex(), "Bearer wrong-secret-key-0001", fiber.StatusUnauthorized},
		{"bad address", "0x1234", "Bearer owner-secret-key-0001", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
		req.Header.Set(CallerAddressHeader, tc.addr)
		if tc.bearer != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.bearer)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: app.Test: %v", tc.name, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d got %d (%s)", tc.name, tc.status, resp.StatusCode, body)
		}
		if tc.status == fiber.StatusOK && string(body) != owner.Hex() {
			t.Fatalf("%s: expected caller %s got %s", tc.name, owner.Hex(), body)
		}
	}
}
