package amount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultDecimals matches the 18-decimal convention of ERC-20 style tokens.
const DefaultDecimals int32 = 18

var (
	// ErrInvalid is returned for negative, fractional or malformed amounts.
	ErrInvalid = errors.New("invalid amount")
	// ErrOverflow is returned when a value does not fit in 256 bits.
	ErrOverflow = errors.New("amount overflows 256 bits")
)

// Parse reads a base-10 amount expressed in base units.
func Parse(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalid)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		if errors.Is(err, uint256.ErrBig256Range) {
			return nil, fmt.Errorf("%w: %s", ErrOverflow, s)
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return v, nil
}

// ParseAll parses a list of base-unit amounts.
func ParseAll(values []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, 0, len(values))
	for i, v := range values {
		n, err := Parse(v)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// FormatAll renders amounts as base-10 strings.
func FormatAll(values []*uint256.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = "0"
			continue
		}
		out[i] = v.Dec()
	}
	return out
}

// ToBaseUnits converts a human amount such as 10.5 into base units for a
// token with the given number of decimals.
func ToBaseUnits(d decimal.Decimal, decimals int32) (*uint256.Int, error) {
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative %s", ErrInvalid, d.String())
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalid, d.String(), decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, d.String())
	}
	return v, nil
}

// FromBaseUnits is the inverse of ToBaseUnits.
func FromBaseUnits(v *uint256.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals)
}
