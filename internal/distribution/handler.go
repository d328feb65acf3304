package distribution

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token-distributor/internal/address"
	"github.com/congo-pay/token-distributor/internal/amount"
	"github.com/congo-pay/token-distributor/internal/middleware"
	"github.com/congo-pay/token-distributor/internal/token"
)

const maxHistoryLimit = 500

// Handler exposes the distribution ledger over HTTP.
type Handler struct {
	service     *Service
	idempotency bool
}

// NewHandler constructs a distribution handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// WithIdempotency records whether mutating routes replay repeated
// Idempotency-Key requests. Info reports it so clients can refuse to resume
// a run against a server that would apply it twice.
func (h *Handler) WithIdempotency(enabled bool) *Handler {
	h.idempotency = enabled
	return h
}

// Info returns the ledger identities and balance.
func (h *Handler) Info(c *fiber.Ctx) error {
	info, err := h.service.Info(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(infoResponse{
		TokenAddress:  info.TokenAddress.Hex(),
		LedgerAddress: info.Address.Hex(),
		Owner:         info.Owner.Hex(),
		VaultAddress:  info.VaultAddress.Hex(),
		BatchPolicy:   string(info.BatchPolicy),
		Balance:       info.Balance.Dec(),
		Idempotency:   h.idempotency,
	})
}

// Sum adds the posted amounts.
func (h *Handler) Sum(c *fiber.Ctx) error {
	var req sumRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	values, err := amount.ParseAll(numbersToStrings(req.Amounts))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	total, err := h.service.Sum(values)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(sumResponse{Sum: total.Dec()})
}

// BalanceOf returns the token balance of the account in the path.
func (h *Handler) BalanceOf(c *fiber.Ctx) error {
	account, err := address.Parse(c.Params("account"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	balance, err := h.service.BalanceOf(c.UserContext(), account)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{Account: account.Hex(), Balance: balance.Dec(), AsOf: time.Now().UTC()})
}

// Transfers lists recent journal entries for the account in the path.
func (h *Handler) Transfers(c *fiber.Ctx) error {
	account, err := address.Parse(c.Params("account"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			return fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = n
	}

	history, err := h.service.Transfers(c.UserContext(), account, limit)
	if err != nil {
		return toHTTPError(err)
	}
	out := make([]TransferResponse, 0, len(history))
	for _, t := range history {
		out = append(out, TransferResponse{ID: t.ID.String(), From: t.From.Hex(), To: t.To.Hex(), Amount: t.Amount.Dec(), CreatedAt: t.CreatedAt})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"account": account.Hex(), "transfers": out})
}

// BatchTransfer distributes the ledger balance to the posted holders.
func (h *Handler) BatchTransfer(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	var req batchTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	holders, err := address.ParseAll(req.Holders)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "holders: "+err.Error())
	}
	values, err := amount.ParseAll(numbersToStrings(req.Amounts))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amounts: "+err.Error())
	}

	receipt, err := h.service.BatchTransfer(c.UserContext(), caller, holders, values)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

// Withdraw moves the posted amount to the vault.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	value, err := amount.Parse(req.Amount.String())
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	receipt, err := h.service.WithdrawToken(c.UserContext(), caller, value)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

// WithdrawAll drains the ledger into the vault.
func (h *Handler) WithdrawAll(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthenticated")
	}
	receipt, err := h.service.WithdrawAllToken(c.UserContext(), caller)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrLengthMismatch),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAmountOverflow),
		errors.Is(err, token.ErrInvalidRecipient):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrBalanceOverflow):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
