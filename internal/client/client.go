// Package client talks to the distributor HTTP API. Every call waits on a
// rate limiter and runs through a circuit breaker.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/congo-pay/token-distributor/internal/distribution"
	"github.com/congo-pay/token-distributor/internal/middleware"
)

const maxResponseSize = 4 * 1024 * 1024

// APIError is a non-2xx response from the distributor.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Caller  common.Address
	APIKey  string
	// RequestsPerSecond and Burst feed the client-side limiter.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Logger            *slog.Logger
}

// Client is an authenticated distributor API client.
type Client struct {
	baseURL        string
	caller         common.Address
	apiKey         string
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *slog.Logger
}

// Info mirrors GET /api/v1/ledger.
type Info struct {
	TokenAddress  string `json:"token_address"`
	LedgerAddress string `json:"ledger_address"`
	Owner         string `json:"owner"`
	VaultAddress  string `json:"vault_address"`
	BatchPolicy   string `json:"batch_policy"`
	Balance       string `json:"balance"`
	// Idempotency reports whether the server replays repeated Idempotency-Key requests.
	Idempotency bool `json:"idempotency"`
}

// Receipt mirrors the body returned by mutating ledger calls.
type Receipt = distribution.ReceiptResponse

// New builds a client. Zero rate settings default to 5 rps with a burst of 5.
func New(cfg Config) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "distributor-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// Rejections are answers, not outages.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn("circuit breaker state changed",
				slog.String("name", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		caller:         cfg.Caller,
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		rateLimiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		circuitBreaker: breaker,
		logger:         cfg.Logger,
	}, nil
}

// Info fetches the ledger identities and balance.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var out Info
	err := c.do(ctx, http.MethodGet, "/api/v1/ledger", "", nil, &out)
	return out, err
}

// Sum asks the service to add amounts.
func (c *Client) Sum(ctx context.Context, amounts []string) (string, error) {
	var out struct {
		Sum string `json:"sum"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/ledger/sum", "", map[string]any{"amounts": amounts}, &out)
	return out.Sum, err
}

// Balance returns the token balance of account.
func (c *Client) Balance(ctx context.Context, account common.Address) (string, error) {
	var out struct {
		Balance string `json:"balance"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/tokens/"+account.Hex()+"/balance", "", nil, &out)
	return out.Balance, err
}

// BatchTransfer submits one batch. idempotencyKey lets a retry of the same
// batch replay the first answer; empty generates a fresh key.
func (c *Client) BatchTransfer(ctx context.Context, idempotencyKey string, holders []common.Address, amounts []string) (Receipt, error) {
	hexes := make([]string, len(holders))
	for i, h := range holders {
		hexes[i] = h.Hex()
	}
	var out Receipt
	err := c.do(ctx, http.MethodPost, "/api/v1/ledger/batch-transfer", idempotencyKey,
		map[string]any{"holders": hexes, "amounts": amounts}, &out)
	return out, err
}

// Withdraw moves amount from the ledger to the vault.
func (c *Client) Withdraw(ctx context.Context, idempotencyKey, amount string) (Receipt, error) {
	var out Receipt
	err := c.do(ctx, http.MethodPost, "/api/v1/ledger/withdraw", idempotencyKey, map[string]any{"amount": amount}, &out)
	return out, err
}

// WithdrawAll drains the ledger into the vault.
func (c *Client) WithdrawAll(ctx context.Context, idempotencyKey string) (Receipt, error) {
	var out Receipt
	err := c.do(ctx, http.MethodPost, "/api/v1/ledger/withdraw-all", idempotencyKey, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	start := time.Now()
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.send(ctx, method, path, idempotencyKey, body, out)
	})
	c.logger.Debug("distributor request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)),
		slog.Any("error", err),
	)
	return err
}

func (c *Client) send(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set(middleware.CallerAddressHeader, c.caller.Hex())
	}
	if method == http.MethodPost && strings.Contains(path, "/ledger/") && !strings.HasSuffix(path, "/sum") {
		if idempotencyKey == "" {
			idempotencyKey = uuid.NewString()
		}
		req.Header.Set(middleware.IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
