package commands

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/token-distributor/internal/amount"
	"github.com/congo-pay/token-distributor/internal/auth"
	"github.com/congo-pay/token-distributor/internal/config"
	"github.com/congo-pay/token-distributor/internal/logging"
	"github.com/congo-pay/token-distributor/internal/routes"
	"github.com/congo-pay/token-distributor/internal/server"
	"github.com/congo-pay/token-distributor/internal/token"
)

const ownerKey = "owner-secret-key-0001"

var (
	ledgerAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	owner      = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

// startAPI serves the real routes on a loopback listener. The ledger holds
// 100 whole tokens. withRedis enables idempotency through miniredis.
func startAPI(t *testing.T, withRedis bool) (string, token.Store) {
	t.Helper()
	hash, err := auth.HashKey(ownerKey)
	if err != nil {
		t.Fatalf("hash key: %v", err)
	}
	cfg := config.Config{
		AppEnv:             "test",
		TokenAddress:       common.HexToAddress("0x7eae20d11ef8c779433eb24503def900b9d28ad7"),
		LedgerAddress:      ledgerAddr,
		OwnerAddress:       owner,
		BatchPolicy:        "open",
		APIKeys:            owner.Hex() + "=" + hash,
		RateLimitPerMinute: 100,
	}

	store := token.NewInMemory()
	supply, err := amount.Parse("100000000000000000000")
	if err != nil {
		t.Fatalf("parse supply: %v", err)
	}
	if err := store.Mint(context.Background(), ledgerAddr, supply); err != nil {
		t.Fatalf("mint: %v", err)
	}

	deps := routes.Deps{Cfg: cfg, Logger: logging.Discard(), Store: store}
	if withRedis {
		mr := miniredis.RunT(t)
		cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = cache.Close() })
		cfg.IdempotencyTTL = time.Hour
		deps.Cfg = cfg
		deps.Cache = cache
	}

	app := fiber.New(fiber.Config{ErrorHandler: server.ErrorHandler, DisableStartupMessage: true})
	if err := routes.Setup(context.Background(), app, deps); err != nil {
		t.Fatalf("setup: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String(), store
}

func run(t *testing.T, url string, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	base := []string{"--api-url", url, "--caller", owner.Hex(), "--api-key", ownerKey, "--rps", "100", "--log-level", "error"}
	root.SetArgs(append(args, base...))
	err := root.Execute()
	return out.String(), err
}

func TestDistributeWritesReceipts(t *testing.T) {
	url, store := startAPI(t, false)
	dir := t.TempDir()

	holdersPath := filepath.Join(dir, "holders.json")
	data := `[
	  {"wallet":"0x3000000000000000000000000000000000000003","amount":"10"},
	  {"wallet":"0x4000000000000000000000000000000000000004","amount":"15"},
	  {"wallet":"0x5000000000000000000000000000000000000005","amount":"0.5"}
	]`
	if err := os.WriteFile(holdersPath, []byte(data), 0o600); err != nil {
		t.Fatalf("write holders: %v", err)
	}
	txsPath := filepath.Join(dir, "txs.txt")

	out, err := run(t, url, "", "distribute", "--holders", holdersPath, "--transactions", txsPath, "--block-size", "2")
	if err != nil {
		t.Fatalf("distribute: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Number of transactions performed: 2") {
		t.Fatalf("unexpected output %q", out)
	}

	raw, err := os.ReadFile(txsPath)
	if err != nil {
		t.Fatalf("read receipts: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(raw)), "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 receipts, got %q", raw)
	}

	bal, _ := store.BalanceOf(context.Background(), common.HexToAddress("0x5000000000000000000000000000000000000005"))
	if bal.Dec() != "500000000000000000" {
		t.Fatalf("expected 0.5 tokens in base units, got %s", bal.Dec())
	}
	left, _ := store.BalanceOf(context.Background(), ledgerAddr)
	if left.Dec() != "74500000000000000000" {
		t.Fatalf("unexpected ledger balance %s", left.Dec())
	}
}

func TestDistributeRefusesUnderfundedRun(t *testing.T) {
	url, store := startAPI(t, false)
	dir := t.TempDir()
	holdersPath := filepath.Join(dir, "holders.json")
	if err := os.WriteFile(holdersPath, []byte(`[{"wallet":"0x3000000000000000000000000000000000000003","amount":"101"}]`), 0o600); err != nil {
		t.Fatalf("write holders: %v", err)
	}

	if _, err := run(t, url, "", "distribute", "--holders", holdersPath, "--transactions", filepath.Join(dir, "txs.txt")); err == nil {
		t.Fatalf("expected underfunded run to fail")
	}
	left, _ := store.BalanceOf(context.Background(), ledgerAddr)
	if left.Dec() != "100000000000000000000" {
		t.Fatalf("ledger must be untouched, has %s", left.Dec())
	}
}

func TestWithdrawAndQueries(t *testing.T) {
	url, store := startAPI(t, false)

	if _, err := run(t, url, "", "withdraw", "--amount", "40"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	out, err := run(t, url, "", "balance")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !strings.Contains(out, "40000000000000000000") {
		t.Fatalf("unexpected owner balance output %q", out)
	}

	out, err = run(t, url, "", "sum", "10", "15")
	if err != nil || strings.TrimSpace(out) != "25" {
		t.Fatalf("sum: %q %v", out, err)
	}

	if _, err := run(t, url, "", "withdraw-all"); err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	out, err = run(t, url, "", "info")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(out, owner.Hex()) || !strings.Contains(out, "\nbalance ") {
		t.Fatalf("unexpected info output %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if fields := strings.Fields(lines[len(lines)-1]); len(fields) != 2 || fields[1] != "0" {
		t.Fatalf("unexpected info output %q", out)
	}

	ownerBal, _ := store.BalanceOf(context.Background(), owner)
	if ownerBal.Dec() != "100000000000000000000" {
		t.Fatalf("owner should hold the full supply, has %s", ownerBal.Dec())
	}
}

func TestHashKey(t *testing.T) {
	out, err := run(t, "http://127.0.0.1:1", ownerKey+"\n", "hash-key", owner.Hex())
	if err != nil {
		t.Fatalf("hash-key: %v", err)
	}
	ring, err := auth.ParseKeyRing(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse generated entry: %v", err)
	}
	if err := ring.Authenticate(owner, ownerKey); err != nil {
		t.Fatalf("generated hash does not authenticate: %v", err)
	}
}

func writeHolders(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "holders.json")
	data := `[
	  {"wallet":"0x3000000000000000000000000000000000000003","amount":"60"},
	  {"wallet":"0x4000000000000000000000000000000000000004","amount":"30"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write holders: %v", err)
	}
	return path
}

func TestDistributeRunIDRequiresIdempotentServer(t *testing.T) {
	url, store := startAPI(t, false)
	dir := t.TempDir()
	holdersPath := writeHolders(t, dir)
	txsPath := filepath.Join(dir, "txs.txt")

	_, err := run(t, url, "", "distribute", "--holders", holdersPath, "--transactions", txsPath, "--run-id", "run-1")
	if err == nil || !strings.Contains(err.Error(), "idempotency disabled") {
		t.Fatalf("expected refusal without idempotency, got %v", err)
	}
	left, _ := store.BalanceOf(context.Background(), ledgerAddr)
	if left.Dec() != "100000000000000000000" {
		t.Fatalf("ledger must be untouched, has %s", left.Dec())
	}

	if _, err := run(t, url, "", "withdraw-all", "--idempotency-key", "drain-1"); err == nil {
		t.Fatalf("expected withdraw-all with an explicit key to be refused")
	}
}

func TestDistributeResumeReplaysBatches(t *testing.T) {
	url, store := startAPI(t, true)
	dir := t.TempDir()
	holdersPath := writeHolders(t, dir)
	txsPath := filepath.Join(dir, "txs.txt")
	args := []string{"distribute", "--holders", holdersPath, "--transactions", txsPath, "--block-size", "1", "--run-id", "run-1"}

	if _, err := run(t, url, "", args...); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := os.ReadFile(txsPath)
	if err != nil {
		t.Fatalf("read receipts: %v", err)
	}
	if _, err := run(t, url, "", args...); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := os.ReadFile(txsPath)
	if err != nil {
		t.Fatalf("read receipts: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("resumed run should replay the same receipts:\n%s\n%s", first, second)
	}

	bal, _ := store.BalanceOf(context.Background(), common.HexToAddress("0x3000000000000000000000000000000000000003"))
	if bal.Dec() != "60000000000000000000" {
		t.Fatalf("holder paid more than once: %s", bal.Dec())
	}
	// The second run starts with 10 tokens left for a 90 token file and
	// still completes because every batch replays.
	left, _ := store.BalanceOf(context.Background(), ledgerAddr)
	if left.Dec() != "10000000000000000000" {
		t.Fatalf("unexpected ledger balance %s", left.Dec())
	}
}
