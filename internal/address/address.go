package address

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalid is returned when a string is not a 20-byte hex account identity.
var ErrInvalid = errors.New("invalid address")

// Parse normalises a hex account identity. Mixed-case input must carry a valid
// EIP-55 checksum; all-lower or all-upper input is accepted as is.
func Parse(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	addr := common.HexToAddress(s)

	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if addr.Hex()[2:] != body {
			return common.Address{}, fmt.Errorf("%w: bad checksum %q", ErrInvalid, s)
		}
	}
	return addr, nil
}

// ParseAll parses every entry, reporting the index of the first bad one.
func ParseAll(values []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(values))
	for i, v := range values {
		addr, err := Parse(v)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// IsZero reports whether addr is the zero address.
func IsZero(addr common.Address) bool {
	return addr == (common.Address{})
}
