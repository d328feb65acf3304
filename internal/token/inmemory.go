package token

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type inMemoryStore struct {
	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
	journal  []Transfer
}

// NewInMemory creates a concurrency-safe in-memory token store useful for unit tests
// and local development.
func NewInMemory() Store {
	return &inMemoryStore{balances: make(map[common.Address]*uint256.Int)}
}

func (s *inMemoryStore) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceLocked(account), nil
}

func (s *inMemoryStore) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (Transfer, error) {
	var rec Transfer
	err := s.Update(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.Transfer(ctx, from, to, amount)
		return err
	})
	return rec, err
}

func (s *inMemoryStore) Mint(_ context.Context, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	amount = zeroIfNil(amount)

	s.mu.Lock()
	defer s.mu.Unlock()

	next, overflow := new(uint256.Int).AddOverflow(s.balanceLocked(to), amount)
	if overflow {
		return ErrBalanceOverflow
	}
	s.balances[to] = next
	s.journal = append(s.journal, Transfer{ID: uuid.New(), To: to, Amount: amount.Clone(), CreatedAt: time.Now().UTC()})
	return nil
}

func (s *inMemoryStore) Update(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, undo: make(map[common.Address]*uint256.Int), journalLen: len(s.journal)}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *inMemoryStore) Transfers(_ context.Context, account common.Address, limit int) ([]Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transfer
	for i := len(s.journal) - 1; i >= 0; i-- {
		rec := s.journal[i]
		if rec.From != account && rec.To != account {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *inMemoryStore) balanceLocked(account common.Address) *uint256.Int {
	if bal, ok := s.balances[account]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

// memTx runs with the store's write lock held.
type memTx struct {
	store      *inMemoryStore
	undo       map[common.Address]*uint256.Int
	journalLen int
}

func (t *memTx) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	return t.store.balanceLocked(account), nil
}

func (t *memTx) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) (Transfer, error) {
	if to == (common.Address{}) {
		return Transfer{}, ErrInvalidRecipient
	}
	amount = zeroIfNil(amount)

	fromBalance := t.store.balanceLocked(from)
	if fromBalance.Lt(amount) {
		return Transfer{}, ErrInsufficientFunds
	}

	if from != to {
		toBalance, overflow := new(uint256.Int).AddOverflow(t.store.balanceLocked(to), amount)
		if overflow {
			return Transfer{}, ErrBalanceOverflow
		}
		t.remember(from)
		t.remember(to)
		t.store.balances[from] = fromBalance.Sub(fromBalance, amount)
		t.store.balances[to] = toBalance
	}

	rec := Transfer{ID: uuid.New(), From: from, To: to, Amount: amount.Clone(), CreatedAt: time.Now().UTC()}
	t.store.journal = append(t.store.journal, rec)
	return rec, nil
}

func (t *memTx) remember(account common.Address) {
	if _, seen := t.undo[account]; seen {
		return
	}
	if bal, ok := t.store.balances[account]; ok {
		t.undo[account] = bal.Clone()
	} else {
		t.undo[account] = nil
	}
}

func (t *memTx) rollback() {
	for account, bal := range t.undo {
		if bal == nil {
			delete(t.store.balances, account)
			continue
		}
		t.store.balances[account] = bal
	}
	t.store.journal = t.store.journal[:t.journalLen]
}
