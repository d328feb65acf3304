package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SeedBalance is a test helper that sets the balance for an account when using the in-memory store.
func SeedBalance(s Store, account common.Address, amount uint64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[account] = uint256.NewInt(amount)
	}
}

// TotalSupply sums every balance held by an in-memory store.
func TotalSupply(s Store) *uint256.Int {
	total := new(uint256.Int)
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		for _, bal := range mem.balances {
			total.Add(total, bal)
		}
	}
	return total
}
