package holders

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/congo-pay/token-distributor/internal/address"
	"github.com/congo-pay/token-distributor/internal/amount"
)

const sample = `[
  {"wallet": "0x3000000000000000000000000000000000000003", "amount": "10.5"},
  {"wallet": "0x4000000000000000000000000000000000000004", "amount": 15},
  {"wallet": "0x5000000000000000000000000000000000000005", "amount": "0"}
]`

func TestParse(t *testing.T) {
	list, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 holders, got %d", len(list))
	}
	if list[0].Wallet != common.HexToAddress("0x3000000000000000000000000000000000000003") || list[0].Amount.String() != "10.5" {
		t.Fatalf("unexpected first holder %+v", list[0])
	}
	if list[1].Amount.String() != "15" {
		t.Fatalf("numeric amount not accepted: %s", list[1].Amount)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":        `[]`,
		"bad wallet":   `[{"wallet":"0x12","amount":"1"}]`,
		"negative":     `[{"wallet":"0x3000000000000000000000000000000000000003","amount":"-1"}]`,
		"not an array": `{"wallet":"0x3000000000000000000000000000000000000003"}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(input)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	_, err := Parse(strings.NewReader(`[]`))
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	_, err = Parse(strings.NewReader(`[{"wallet":"nope","amount":"1"}]`))
	if !errors.Is(err, address.ErrInvalid) {
		t.Fatalf("expected address.ErrInvalid, got %v", err)
	}
}

func TestChunk(t *testing.T) {
	list, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	batches, err := Chunk(list, 2, amount.DefaultDecimals)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(batches) != 2 || len(batches[0].Holders) != 2 || len(batches[1].Holders) != 1 {
		t.Fatalf("unexpected chunking %+v", batches)
	}
	if got := batches[0].Amounts[0].Dec(); got != "10500000000000000000" {
		t.Fatalf("expected 10.5e18 base units, got %s", got)
	}
	total, err := batches[0].Total()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total.Dec() != "25500000000000000000" {
		t.Fatalf("unexpected batch total %s", total.Dec())
	}
	if !batches[1].Amounts[0].IsZero() {
		t.Fatalf("zero amount should stay zero")
	}
}

func TestChunkRejectsBadInput(t *testing.T) {
	list, _ := Parse(strings.NewReader(sample))
	if _, err := Chunk(list, 0, 18); err == nil {
		t.Fatalf("expected error for zero block size")
	}
	if _, err := Chunk(list, 10, 0); !errors.Is(err, amount.ErrInvalid) {
		t.Fatalf("expected fractional amount rejected with 0 decimals, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	holdersPath := filepath.Join(dir, "holders.json")
	if err := os.WriteFile(holdersPath, []byte(sample), 0o600); err != nil {
		t.Fatalf("write holders: %v", err)
	}
	list, err := Load(holdersPath)
	if err != nil || len(list) != 3 {
		t.Fatalf("load: %d %v", len(list), err)
	}

	receiptsPath := filepath.Join(dir, "txs.txt")
	if err := SaveReceipts(receiptsPath, []string{"r-1", "r-2"}); err != nil {
		t.Fatalf("save receipts: %v", err)
	}
	raw, err := os.ReadFile(receiptsPath)
	if err != nil {
		t.Fatalf("read receipts: %v", err)
	}
	if string(raw) != "r-1\nr-2\n" {
		t.Fatalf("unexpected receipts file %q", raw)
	}

	var buf bytes.Buffer
	if err := WriteReceipts(&buf, nil); err != nil || buf.Len() != 0 {
		t.Fatalf("empty receipts should write nothing: %q %v", buf.String(), err)
	}
}
