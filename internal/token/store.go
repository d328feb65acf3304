package token

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientFunds occurs when the sender lacks the balance to cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidRecipient is returned for transfers or mints to the zero address.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrBalanceOverflow is returned when a credit would push a balance past 2^256-1.
	ErrBalanceOverflow = errors.New("balance overflow")
)

// Transfer is a journal record of one balance movement.
type Transfer struct {
	ID        uuid.UUID
	From      common.Address
	To        common.Address
	Amount    *uint256.Int
	CreatedAt time.Time
}

// Tx is the view of a store handed to Update callbacks. Every mutation made
// through it commits or rolls back together.
type Tx interface {
	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (Transfer, error)
}

// Store is the fungible token balance store the distribution ledger draws on
// (e.g. in-memory or Postgres).
type Store interface {
	Tx
	// Mint credits new supply to an account. Used for bootstrap only.
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
	// Update runs fn as one atomic unit.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// Transfers lists the most recent journal entries touching account, newest first.
	Transfers(ctx context.Context, account common.Address, limit int) ([]Transfer, error)
}

func zeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
