package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/token-distributor/internal/address"
)

const minKeyLength = 16

var (
	// ErrInvalidCredentials is returned when an address/key pair does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrWeakKey is returned when registering a key shorter than minKeyLength.
	ErrWeakKey = errors.New("api key too short")
)

// KeyRing binds API keys to caller addresses. Only bcrypt hashes are kept.
type KeyRing struct {
	mu     sync.RWMutex
	hashes map[common.Address][]byte
	cost   int
}

// NewKeyRing returns an empty key ring hashing at bcrypt.DefaultCost.
func NewKeyRing() *KeyRing {
	return &KeyRing{hashes: make(map[common.Address][]byte), cost: bcrypt.DefaultCost}
}

// ParseKeyRing reads "address=bcrypt-hash" pairs separated by commas.
func ParseKeyRing(entries string) (*KeyRing, error) {
	ring := NewKeyRing()
	for _, entry := range strings.Split(entries, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		addrPart, hash, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("api key entry %q: expected address=hash", entry)
		}
		addr, err := address.Parse(addrPart)
		if err != nil {
			return nil, fmt.Errorf("api key entry: %w", err)
		}
		if err := ring.AddHash(addr, []byte(strings.TrimSpace(hash))); err != nil {
			return nil, fmt.Errorf("api key entry for %s: %w", addr.Hex(), err)
		}
	}
	return ring, nil
}

// HashKey produces the bcrypt hash stored in configuration for apiKey.
func HashKey(apiKey string) (string, error) {
	if len(apiKey) < minKeyLength {
		return "", ErrWeakKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Register hashes apiKey and binds it to addr, replacing any previous key.
func (k *KeyRing) Register(addr common.Address, apiKey string) error {
	if len(apiKey) < minKeyLength {
		return ErrWeakKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), k.cost)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hashes[addr] = hash
	return nil
}

// AddHash binds a precomputed bcrypt hash to addr.
func (k *KeyRing) AddHash(addr common.Address, hash []byte) error {
	if _, err := bcrypt.Cost(hash); err != nil {
		return fmt.Errorf("invalid bcrypt hash: %w", err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hashes[addr] = hash
	return nil
}

// Authenticate checks apiKey against the hash registered for addr.
func (k *KeyRing) Authenticate(addr common.Address, apiKey string) error {
	k.mu.RLock()
	hash, ok := k.hashes[addr]
	k.mu.RUnlock()
	if !ok {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(apiKey)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Len reports how many callers are registered.
func (k *KeyRing) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.hashes)
}
