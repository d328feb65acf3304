package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/token-distributor/internal/amount"
	"github.com/congo-pay/token-distributor/internal/auth"
	"github.com/congo-pay/token-distributor/internal/config"
	"github.com/congo-pay/token-distributor/internal/distribution"
	"github.com/congo-pay/token-distributor/internal/middleware"
	"github.com/congo-pay/token-distributor/internal/notification"
	"github.com/congo-pay/token-distributor/internal/token"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Store overrides the token store derived from DB.
	Store token.Store
}

// Setup configures middlewares and all application routes.
func Setup(ctx context.Context, app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil && d.Store == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	RegisterHealthRoutes(app, d)

	store, err := buildStore(ctx, d)
	if err != nil {
		return err
	}

	policy, err := distribution.ParseBatchPolicy(d.Cfg.BatchPolicy)
	if err != nil {
		return err
	}
	ledger, err := distribution.New(store, distribution.Config{
		TokenAddress: d.Cfg.TokenAddress,
		Address:      d.Cfg.LedgerAddress,
		Owner:        d.Cfg.OwnerAddress,
		BatchPolicy:  policy,
	})
	if err != nil {
		return err
	}

	ring, err := auth.ParseKeyRing(d.Cfg.APIKeys)
	if err != nil {
		return fmt.Errorf("parse API_KEYS: %w", err)
	}
	if ring.Len() == 0 {
		d.Logger.Warn("no API keys configured; mutating ledger endpoints will reject every caller")
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	handler := distribution.NewHandler(distribution.NewService(ledger, notifier, d.Logger)).
		WithIdempotency(d.Cache != nil)

	api := app.Group("/api/v1", middleware.Audit(d.Logger))
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	guard := []fiber.Handler{
		middleware.CallerAuth(ring),
		middleware.CallerRateLimit(d.Cache, d.Cfg.RateLimitPerMinute, d.Logger),
	}
	if d.Cache != nil {
		guard = append(guard, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterLedgerRoutes(api, handler, guard...)

	return nil
}

func buildStore(ctx context.Context, d Deps) (token.Store, error) {
	if d.Store != nil {
		return d.Store, nil
	}
	if d.DB != nil {
		pg := token.NewPostgresStore(d.DB, d.Cfg.TokenAddress)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	}

	store := token.NewInMemory()
	if err := bootstrapDev(ctx, store, d.Cfg, d.Logger); err != nil {
		return nil, err
	}
	return store, nil
}

// bootstrapDev mints DEV_MINT_AMOUNT to the owner and moves DEV_FUND_AMOUNT of
// it into the ledger, so a fresh in-memory store has something to distribute.
func bootstrapDev(ctx context.Context, store token.Store, cfg config.Config, logger *slog.Logger) error {
	mint, err := amount.Parse(cfg.DevMintAmount)
	if err != nil {
		return fmt.Errorf("invalid DEV_MINT_AMOUNT: %w", err)
	}
	fund, err := amount.Parse(cfg.DevFundAmount)
	if err != nil {
		return fmt.Errorf("invalid DEV_FUND_AMOUNT: %w", err)
	}
	if fund.Gt(mint) {
		return fmt.Errorf("DEV_FUND_AMOUNT exceeds DEV_MINT_AMOUNT")
	}
	if mint.IsZero() {
		return nil
	}

	if err := store.Mint(ctx, cfg.OwnerAddress, mint); err != nil {
		return fmt.Errorf("mint dev supply: %w", err)
	}
	if !fund.IsZero() {
		if _, err := store.Transfer(ctx, cfg.OwnerAddress, cfg.LedgerAddress, fund); err != nil {
			return fmt.Errorf("fund ledger: %w", err)
		}
	}
	logger.Info("dev token supply minted",
		slog.String("owner", cfg.OwnerAddress.Hex()),
		slog.String("minted", mint.Dec()),
		slog.String("ledger_funded", fund.Dec()),
	)
	return nil
}
