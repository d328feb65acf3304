package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token-distributor/internal/logging"
)

func TestAuditLogsWrappedFiberErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(Audit(logging.NewWithWriter(&buf, "debug", "text")))
	app.Post("/withdraw", func(c *fiber.Ctx) error {
		return fmt.Errorf("withdraw: %w", fiber.NewError(http.StatusForbidden, "caller is not the owner"))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/withdraw", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	line := buf.String()
	if !strings.Contains(line, "status=403") || !strings.Contains(line, "level=WARN") {
		t.Fatalf("expected a warn line with status 403, got %q", line)
	}
}
