// Package holders reads distribution lists and writes the receipts produced
// by submitting them.
package holders

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/token-distributor/internal/address"
	"github.com/congo-pay/token-distributor/internal/amount"
)

// ErrEmpty is returned when a holders file lists nobody.
var ErrEmpty = errors.New("holders list is empty")

// Holder is one recipient with an amount in whole token units.
type Holder struct {
	Wallet common.Address
	Amount decimal.Decimal
}

type record struct {
	Wallet string          `json:"wallet"`
	Amount decimal.Decimal `json:"amount"`
}

// Batch is one batch-transfer call worth of recipients, in base units.
type Batch struct {
	Holders []common.Address
	Amounts []*uint256.Int
}

// Load reads a holders file from disk.
func Load(path string) ([]Holder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open holders file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes [{"wallet": "0x..", "amount": "10.5"}, ...]. Amounts may be
// JSON numbers or strings.
func Parse(r io.Reader) ([]Holder, error) {
	var records []record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode holders: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	out := make([]Holder, 0, len(records))
	for i, rec := range records {
		wallet, err := address.Parse(rec.Wallet)
		if err != nil {
			return nil, fmt.Errorf("holder %d: %w", i, err)
		}
		if rec.Amount.Sign() < 0 {
			return nil, fmt.Errorf("holder %d: %w: negative amount", i, amount.ErrInvalid)
		}
		out = append(out, Holder{Wallet: wallet, Amount: rec.Amount})
	}
	return out, nil
}

// Chunk converts amounts to base units and splits holders into batches of at
// most blockSize, preserving order.
func Chunk(list []Holder, blockSize int, decimals int32) ([]Batch, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}

	var batches []Batch
	for start := 0; start < len(list); start += blockSize {
		end := min(start+blockSize, len(list))
		b := Batch{
			Holders: make([]common.Address, 0, end-start),
			Amounts: make([]*uint256.Int, 0, end-start),
		}
		for i := start; i < end; i++ {
			v, err := amount.ToBaseUnits(list[i].Amount, decimals)
			if err != nil {
				return nil, fmt.Errorf("holder %d (%s): %w", i, list[i].Wallet.Hex(), err)
			}
			b.Holders = append(b.Holders, list[i].Wallet)
			b.Amounts = append(b.Amounts, v)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// Total sums a batch's amounts.
func (b Batch) Total() (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, v := range b.Amounts {
		if _, overflow := total.AddOverflow(total, v); overflow {
			return nil, amount.ErrOverflow
		}
	}
	return total, nil
}

// WriteReceipts writes one receipt id per line.
func WriteReceipts(w io.Writer, ids []string) error {
	bw := bufio.NewWriter(w)
	for _, id := range ids {
		if _, err := bw.WriteString(id + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveReceipts writes receipt ids to path, replacing any previous content.
func SaveReceipts(path string, ids []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create receipts file: %w", err)
	}
	if err := WriteReceipts(f, ids); err != nil {
		f.Close()
		return fmt.Errorf("write receipts: %w", err)
	}
	return f.Close()
}
