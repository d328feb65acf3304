package distribution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/congo-pay/token-distributor/internal/amount"
	"github.com/congo-pay/token-distributor/internal/notification"
	"github.com/congo-pay/token-distributor/internal/token"
)

// Service wraps a Ledger with logging and notifications for the API layer.
type Service struct {
	ledger   *Ledger
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a distribution service.
func NewService(ledger *Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, notifier: notifier, logger: logger}
}

// Info is a snapshot of the ledger's identities and balance.
type Info struct {
	TokenAddress common.Address
	Address      common.Address
	Owner        common.Address
	VaultAddress common.Address
	BatchPolicy  BatchPolicy
	Balance      *uint256.Int
}

// Info reports the ledger's fixed configuration and current balance.
func (s *Service) Info(ctx context.Context) (Info, error) {
	balance, err := s.ledger.Balance(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{
		TokenAddress: s.ledger.TokenAddress(),
		Address:      s.ledger.Address(),
		Owner:        s.ledger.Owner(),
		VaultAddress: s.ledger.VaultAddress(),
		BatchPolicy:  s.ledger.BatchPolicy(),
		Balance:      balance,
	}, nil
}

// Sum adds amounts without touching any state.
func (s *Service) Sum(amounts []*uint256.Int) (*uint256.Int, error) {
	return s.ledger.Sum(amounts)
}

// BalanceOf returns the token balance of any account.
func (s *Service) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	return s.ledger.token.BalanceOf(ctx, account)
}

// Transfers returns the journal entries touching account.
func (s *Service) Transfers(ctx context.Context, account common.Address, limit int) ([]token.Transfer, error) {
	return s.ledger.token.Transfers(ctx, account, limit)
}

// BatchTransfer distributes the ledger balance and notifies every credited holder.
func (s *Service) BatchTransfer(ctx context.Context, caller common.Address, holders []common.Address, amounts []*uint256.Int) (Receipt, error) {
	receipt, err := s.ledger.BatchTransfer(ctx, caller, holders, amounts)
	if err != nil {
		s.logger.WarnContext(ctx, "batch transfer rejected",
			slog.String("caller", caller.Hex()),
			slog.Int("holders", len(holders)),
			slog.Any("error", err))
		return Receipt{}, err
	}

	s.logger.InfoContext(ctx, "batch transfer completed",
		slog.String("receipt_id", receipt.ID),
		slog.String("caller", caller.Hex()),
		slog.Int("holders", len(holders)),
		slog.String("total", receipt.Total.Dec()),
		slog.String("ledger_balance", receipt.Balance.Dec()))

	for _, rec := range receipt.Transfers {
		if rec.Amount.IsZero() {
			continue
		}
		s.notify(ctx, notification.Message{
			Kind:        notification.KindTokensReceived,
			Destination: rec.To.Hex(),
			Reference:   receipt.ID,
			Body:        fmt.Sprintf("You received %s tokens from %s", amount.FromBaseUnits(rec.Amount, amount.DefaultDecimals), rec.From.Hex()),
		})
	}
	return receipt, nil
}

// WithdrawToken moves amount to the vault.
func (s *Service) WithdrawToken(ctx context.Context, caller common.Address, value *uint256.Int) (Receipt, error) {
	receipt, err := s.ledger.WithdrawToken(ctx, caller, value)
	return s.afterWithdraw(ctx, caller, receipt, err)
}

// WithdrawAllToken drains the ledger into the vault.
func (s *Service) WithdrawAllToken(ctx context.Context, caller common.Address) (Receipt, error) {
	receipt, err := s.ledger.WithdrawAllToken(ctx, caller)
	return s.afterWithdraw(ctx, caller, receipt, err)
}

func (s *Service) afterWithdraw(ctx context.Context, caller common.Address, receipt Receipt, err error) (Receipt, error) {
	if err != nil {
		s.logger.WarnContext(ctx, "withdrawal rejected", slog.String("caller", caller.Hex()), slog.Any("error", err))
		return Receipt{}, err
	}

	s.logger.InfoContext(ctx, "withdrawal completed",
		slog.String("receipt_id", receipt.ID),
		slog.String("kind", receipt.Kind),
		slog.String("amount", receipt.Total.Dec()),
		slog.String("vault", s.ledger.VaultAddress().Hex()))

	if !receipt.Total.IsZero() {
		s.notify(ctx, notification.Message{
			Kind:        notification.KindVaultWithdrawal,
			Destination: s.ledger.VaultAddress().Hex(),
			Reference:   receipt.ID,
			Body:        fmt.Sprintf("Vault received %s tokens", amount.FromBaseUnits(receipt.Total, amount.DefaultDecimals)),
		})
	}
	return receipt, nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}
