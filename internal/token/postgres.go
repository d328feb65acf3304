package token

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the balances of a single token in PostgreSQL.
type PostgresStore struct {
	db    *pgxpool.Pool
	token common.Address
}

// NewPostgresStore constructs a Postgres-backed store for the given token.
func NewPostgresStore(db *pgxpool.Pool, token common.Address) *PostgresStore {
	return &PostgresStore{db: db, token: token}
}

// EnsureSchema creates the balance and journal tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply token schema: %w", err)
	}
	return nil
}

// BalanceOf returns the committed balance of account.
func (s *PostgresStore) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	return balanceOf(ctx, s.db, s.token, account, false)
}

// Transfer moves amount between two accounts in its own transaction.
func (s *PostgresStore) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (Transfer, error) {
	var rec Transfer
	err := s.Update(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.Transfer(ctx, from, to, amount)
		return err
	})
	return rec, err
}

// Mint credits new supply to an account.
func (s *PostgresStore) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	amount = zeroIfNil(amount)

	return s.Update(ctx, func(tx Tx) error {
		t := tx.(*pgTx)
		if err := credit(ctx, t.tx, s.token, to, amount); err != nil {
			return err
		}
		return record(ctx, t.tx, s.token, Transfer{ID: uuid.New(), To: to, Amount: amount, CreatedAt: time.Now().UTC()})
	})
}

// Update runs fn inside a single database transaction.
func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{tx: tx, token: s.token}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Transfers lists recent journal entries touching account.
func (s *PostgresStore) Transfers(ctx context.Context, account common.Address, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, from_address, to_address, amount::text, created_at
        FROM token_transfers
        WHERE token = $1 AND (from_address = $2 OR to_address = $2)
        ORDER BY created_at DESC
        LIMIT $3`
	rows, err := s.db.Query(ctx, query, s.token.Hex(), account.Hex(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var (
			rec      Transfer
			from, to string
			raw      string
		)
		if err := rows.Scan(&rec.ID, &from, &to, &raw, &rec.CreatedAt); err != nil {
			return nil, err
		}
		amount, err := uint256.FromDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("decode transfer %s amount: %w", rec.ID, err)
		}
		rec.From = common.HexToAddress(from)
		rec.To = common.HexToAddress(to)
		rec.Amount = amount
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx    pgx.Tx
	token common.Address
}

func (t *pgTx) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	return balanceOf(ctx, t.tx, t.token, account, true)
}

func (t *pgTx) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (Transfer, error) {
	if to == (common.Address{}) {
		return Transfer{}, ErrInvalidRecipient
	}
	amount = zeroIfNil(amount)

	fromBalance, err := balanceOf(ctx, t.tx, t.token, from, true)
	if err != nil {
		return Transfer{}, err
	}
	if fromBalance.Lt(amount) {
		return Transfer{}, ErrInsufficientFunds
	}

	if from != to && !amount.IsZero() {
		const debit = `
            UPDATE token_accounts SET balance = balance - $3::text::numeric, updated_at = now()
            WHERE token = $1 AND address = $2`
		if _, err := t.tx.Exec(ctx, debit, t.token.Hex(), from.Hex(), amount.Dec()); err != nil {
			return Transfer{}, err
		}
		if err := credit(ctx, t.tx, t.token, to, amount); err != nil {
			return Transfer{}, err
		}
	}

	rec := Transfer{ID: uuid.New(), From: from, To: to, Amount: amount.Clone(), CreatedAt: time.Now().UTC()}
	if err := record(ctx, t.tx, t.token, rec); err != nil {
		return Transfer{}, err
	}
	return rec, nil
}

func balanceOf(ctx context.Context, q querier, token, account common.Address, forUpdate bool) (*uint256.Int, error) {
	query := `SELECT balance::text FROM token_accounts WHERE token = $1 AND address = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var raw string
	if err := q.QueryRow(ctx, query, token.Hex(), account.Hex()).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, err
	}
	balance, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode balance of %s: %w", account.Hex(), err)
	}
	return balance, nil
}

func credit(ctx context.Context, q querier, token, to common.Address, amount *uint256.Int) error {
	const upsert = `
        INSERT INTO token_accounts (token, address, balance) VALUES ($1, $2, $3::text::numeric)
        ON CONFLICT (token, address) DO UPDATE
        SET balance = token_accounts.balance + EXCLUDED.balance, updated_at = now()
        RETURNING balance::text`
	var raw string
	if err := q.QueryRow(ctx, upsert, token.Hex(), to.Hex(), amount.Dec()).Scan(&raw); err != nil {
		return err
	}
	if _, err := uint256.FromDecimal(raw); err != nil {
		return ErrBalanceOverflow
	}
	return nil
}

func record(ctx context.Context, q querier, token common.Address, rec Transfer) error {
	_, err := q.Exec(ctx, `INSERT INTO token_transfers (id, token, from_address, to_address, amount, created_at)
        VALUES ($1, $2, $3, $4, $5::text::numeric, $6)`,
		rec.ID, token.Hex(), rec.From.Hex(), rec.To.Hex(), zeroIfNil(rec.Amount).Dec(), rec.CreatedAt)
	return err
}
