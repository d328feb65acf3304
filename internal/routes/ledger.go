package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token-distributor/internal/distribution"
)

// RegisterLedgerRoutes exposes the ledger endpoints. Mutating endpoints run
// behind guard, in order, before the handler.
func RegisterLedgerRoutes(api fiber.Router, h *distribution.Handler, guard ...fiber.Handler) {
	api.Get("/ledger", h.Info)
	api.Post("/ledger/sum", h.Sum)
	api.Get("/tokens/:account/balance", h.BalanceOf)
	api.Get("/tokens/:account/transfers", h.Transfers)

	api.Post("/ledger/batch-transfer", guarded(guard, h.BatchTransfer)...)
	api.Post("/ledger/withdraw", guarded(guard, h.Withdraw)...)
	api.Post("/ledger/withdraw-all", guarded(guard, h.WithdrawAll)...)
}

func guarded(guard []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(guard)+1)
	out = append(out, guard...)
	return append(out, h)
}
