package distribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/congo-pay/token-distributor/internal/token"
)

var (
	// ErrLengthMismatch occurs when holders and amounts differ in length.
	ErrLengthMismatch = errors.New("lengths of arrays do not match")

	// ErrInsufficientBalance occurs when the ledger cannot cover a requested total.
	ErrInsufficientBalance = errors.New("insufficient contract balance")

	// ErrInvalidAmount is returned for a zero withdrawal.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrUnauthorized is returned when the caller is not the owner for an owner-only operation.
	ErrUnauthorized = errors.New("caller is not the owner")

	// ErrAmountOverflow is returned when a sum of amounts exceeds 2^256-1.
	ErrAmountOverflow = errors.New("sum of amounts overflows")
)

// Receipt kinds.
const (
	// KindBatchTransfer marks a receipt produced by BatchTransfer.
	KindBatchTransfer = "batch_transfer"
	// KindWithdraw marks a receipt produced by WithdrawToken.
	KindWithdraw = "withdraw"
	// KindWithdrawAll marks a receipt produced by WithdrawAllToken.
	KindWithdrawAll = "withdraw_all"
)

// BatchPolicy controls who may call BatchTransfer.
type BatchPolicy string

const (
	// BatchPolicyOpen lets any caller distribute the ledger balance.
	BatchPolicyOpen BatchPolicy = "open"
	// BatchPolicyOwner restricts distribution to the owner.
	BatchPolicyOwner BatchPolicy = "owner"
)

// ParseBatchPolicy maps a configuration string to a policy. Empty means open.
func ParseBatchPolicy(s string) (BatchPolicy, error) {
	switch BatchPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BatchPolicyOpen:
		return BatchPolicyOpen, nil
	case BatchPolicyOwner:
		return BatchPolicyOwner, nil
	default:
		return "", fmt.Errorf("unknown batch policy %q", s)
	}
}

// Config fixes the identities of a ledger at construction.
type Config struct {
	TokenAddress common.Address
	// Address is the ledger's own account in the token store.
	Address     common.Address
	Owner       common.Address
	BatchPolicy BatchPolicy
}

// Receipt describes a committed ledger operation.
type Receipt struct {
	ID          string
	Kind        string
	Caller      common.Address
	Total       *uint256.Int
	Transfers   []token.Transfer
	Balance     *uint256.Int
	CompletedAt time.Time
}

// Ledger holds a token balance on behalf of its owner and distributes it.
// Owner and vault are fixed at construction; mutating calls run one at a time.
type Ledger struct {
	mu sync.Mutex

	token        token.Store
	tokenAddress common.Address
	address      common.Address
	owner        common.Address
	vault        common.Address
	batchPolicy  BatchPolicy
}

// New binds a ledger to a token store. The vault starts out equal to the owner.
func New(store token.Store, cfg Config) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("ledger address is required")
	}
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner address is required")
	}
	policy := cfg.BatchPolicy
	if policy == "" {
		policy = BatchPolicyOpen
	}
	return &Ledger{
		token:        store,
		tokenAddress: cfg.TokenAddress,
		address:      cfg.Address,
		owner:        cfg.Owner,
		vault:        cfg.Owner,
		batchPolicy:  policy,
	}, nil
}

// Owner returns the account allowed to withdraw.
func (l *Ledger) Owner() common.Address { return l.owner }

// VaultAddress returns the withdrawal destination.
func (l *Ledger) VaultAddress() common.Address { return l.vault }

// TokenAddress returns the token the ledger holds.
func (l *Ledger) TokenAddress() common.Address { return l.tokenAddress }

// Address returns the ledger's own account in the token store.
func (l *Ledger) Address() common.Address { return l.address }

// BatchPolicy returns who may call BatchTransfer.
func (l *Ledger) BatchPolicy() BatchPolicy { return l.batchPolicy }

// Balance returns the ledger's current balance in the token store.
func (l *Ledger) Balance(ctx context.Context) (*uint256.Int, error) {
	return l.token.BalanceOf(ctx, l.address)
}

// Sum adds amounts. Nil entries count as zero.
func Sum(amounts []*uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, a := range amounts {
		if a == nil {
			continue
		}
		if _, overflow := total.AddOverflow(total, a); overflow {
			return nil, ErrAmountOverflow
		}
	}
	return total, nil
}

// Sum is callable by anyone and has no side effects.
func (l *Ledger) Sum(amounts []*uint256.Int) (*uint256.Int, error) {
	return Sum(amounts)
}

// BatchTransfer sends amounts[i] to holders[i] for every i. Either every
// recipient is credited or nothing changes.
func (l *Ledger) BatchTransfer(ctx context.Context, caller common.Address, holders []common.Address, amounts []*uint256.Int) (Receipt, error) {
	if l.batchPolicy == BatchPolicyOwner && caller != l.owner {
		return Receipt{}, ErrUnauthorized
	}
	if len(holders) != len(amounts) {
		return Receipt{}, ErrLengthMismatch
	}
	total, err := Sum(amounts)
	if err != nil {
		return Receipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	receipt := Receipt{ID: uuid.NewString(), Kind: KindBatchTransfer, Caller: caller, Total: total}
	err = l.token.Update(ctx, func(tx token.Tx) error {
		balance, err := tx.BalanceOf(ctx, l.address)
		if err != nil {
			return err
		}
		if total.Gt(balance) {
			return fmt.Errorf("not enough balance in the contract: %w", ErrInsufficientBalance)
		}

		receipt.Transfers = make([]token.Transfer, 0, len(holders))
		for i, holder := range holders {
			rec, err := tx.Transfer(ctx, l.address, holder, amounts[i])
			if err != nil {
				return fmt.Errorf("transfer %d to %s: %w", i, holder.Hex(), err)
			}
			receipt.Transfers = append(receipt.Transfers, rec)
		}

		receipt.Balance, err = tx.BalanceOf(ctx, l.address)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}

	receipt.CompletedAt = time.Now().UTC()
	return receipt, nil
}

// WithdrawToken moves amount from the ledger to the vault. Owner only.
func (l *Ledger) WithdrawToken(ctx context.Context, caller common.Address, amount *uint256.Int) (Receipt, error) {
	if caller != l.owner {
		return Receipt{}, ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return Receipt{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.withdraw(ctx, KindWithdraw, caller, func(balance *uint256.Int) (*uint256.Int, error) {
		if amount.Gt(balance) {
			return nil, ErrInsufficientBalance
		}
		return amount, nil
	})
}

// WithdrawAllToken drains the ledger into the vault. Owner only. An empty
// ledger yields a zero-amount receipt rather than an error.
func (l *Ledger) WithdrawAllToken(ctx context.Context, caller common.Address) (Receipt, error) {
	if caller != l.owner {
		return Receipt{}, ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.withdraw(ctx, KindWithdrawAll, caller, func(balance *uint256.Int) (*uint256.Int, error) {
		return balance, nil
	})
}

// withdraw reads the balance, lets pick decide the amount and transfers it to
// the vault inside one store transaction. Callers hold l.mu.
func (l *Ledger) withdraw(ctx context.Context, kind string, caller common.Address, pick func(balance *uint256.Int) (*uint256.Int, error)) (Receipt, error) {
	receipt := Receipt{ID: uuid.NewString(), Kind: kind, Caller: caller}
	err := l.token.Update(ctx, func(tx token.Tx) error {
		balance, err := tx.BalanceOf(ctx, l.address)
		if err != nil {
			return err
		}
		amount, err := pick(balance)
		if err != nil {
			return err
		}

		rec, err := tx.Transfer(ctx, l.address, l.vault, amount)
		if err != nil {
			return fmt.Errorf("transfer to vault %s: %w", l.vault.Hex(), err)
		}
		receipt.Total = amount.Clone()
		receipt.Transfers = []token.Transfer{rec}

		receipt.Balance, err = tx.BalanceOf(ctx, l.address)
		return err
	})
	if err != nil {
		return Receipt{}, err
	}

	receipt.CompletedAt = time.Now().UTC()
	return receipt, nil
}
