package amount

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	v, err := Parse("500000000000000000000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Dec() != "500000000000000000000" {
		t.Fatalf("unexpected value %s", v.Dec())
	}

	for _, bad := range []string{"", "-1", "1.5", "abc"} {
		if _, err := Parse(bad); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected invalid for %q, got %v", bad, err)
		}
	}

	// 2^256
	if _, err := Parse("115792089237316195423570985008687907853269984665640564039457584007913129639936"); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestToBaseUnits(t *testing.T) {
	v, err := ToBaseUnits(decimal.RequireFromString("10.5"), DefaultDecimals)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if v.Dec() != "10500000000000000000" {
		t.Fatalf("unexpected base units %s", v.Dec())
	}

	if _, err := ToBaseUnits(decimal.RequireFromString("0.1234"), 2); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected precision error, got %v", err)
	}
	if _, err := ToBaseUnits(decimal.RequireFromString("-1"), 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected negative error, got %v", err)
	}
}

func TestFromBaseUnits(t *testing.T) {
	d := FromBaseUnits(uint256.NewInt(1_500_000_000_000_000_000), DefaultDecimals)
	if d.String() != "1.5" {
		t.Fatalf("expected 1.5, got %s", d.String())
	}
}
