package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token-distributor/internal/middleware"
)

func TestErrorHandlerRendersJSON(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(middleware.RequestID())
	app.Get("/forbidden", func(c *fiber.Ctx) error {
		return fiber.NewError(http.StatusForbidden, "caller is not the owner")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("store unavailable")
	})

	cases := []struct {
		path   string
		status int
		msg    string
	}{
		{"/forbidden", http.StatusForbidden, "caller is not the owner"},
		{"/boom", http.StatusInternalServerError, "store unavailable"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("X-Request-ID", "req-1")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.status || body["error"] != tc.msg || body["request_id"] != "req-1" {
			t.Fatalf("%s: unexpected %d %v", tc.path, resp.StatusCode, body)
		}
	}
}
