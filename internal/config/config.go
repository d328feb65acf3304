package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/congo-pay/token-distributor/internal/address"
)

const (
	defaultAppName         = "TokenDistributor"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultBatchPolicy     = "open"
	defaultRatePerMinute   = 60
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from the environment.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	TokenAddress  common.Address
	LedgerAddress common.Address
	OwnerAddress  common.Address
	BatchPolicy   string
	// APIKeys holds "address=bcrypt-hash" pairs separated by commas.
	APIKeys            string
	RateLimitPerMinute int

	// Dev bootstrap, in-memory store only.
	DevMintAmount string
	DevFundAmount string
}

// Load reads configuration from an optional .env file and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("BATCH_POLICY", defaultBatchPolicy)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", defaultRatePerMinute)
	v.SetDefault("DEV_MINT_AMOUNT", "0")
	v.SetDefault("DEV_FUND_AMOUNT", "0")
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "TOKEN_ADDRESS", "LEDGER_ADDRESS", "OWNER_ADDRESS", "API_KEYS",
		idemTTLSecondsEnvVar, idemTTLDurEnvVar, shutdownSecondsEnvVar, shutdownDurationEnvVar,
	} {
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppName:            v.GetString("APP_NAME"),
		AppEnv:             v.GetString("APP_ENV"),
		Port:               v.GetString("PORT"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		RedisURL:           v.GetString("REDIS_URL"),
		BatchPolicy:        strings.ToLower(v.GetString("BATCH_POLICY")),
		APIKeys:            v.GetString("API_KEYS"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		DevMintAmount:      v.GetString("DEV_MINT_AMOUNT"),
		DevFundAmount:      v.GetString("DEV_FUND_AMOUNT"),
	}

	var err error
	if cfg.ShutdownPeriod, err = duration(v, shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration(v, idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if cfg.TokenAddress, err = requiredAddress(v, "TOKEN_ADDRESS"); err != nil {
		return Config{}, err
	}
	if cfg.LedgerAddress, err = requiredAddress(v, "LEDGER_ADDRESS"); err != nil {
		return Config{}, err
	}
	if cfg.OwnerAddress, err = requiredAddress(v, "OWNER_ADDRESS"); err != nil {
		return Config{}, err
	}
	if cfg.LedgerAddress == cfg.OwnerAddress {
		return Config{}, fmt.Errorf("LEDGER_ADDRESS must differ from OWNER_ADDRESS")
	}

	if cfg.RateLimitPerMinute < 0 {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %d", cfg.RateLimitPerMinute)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func duration(v *viper.Viper, secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if s := v.GetString(secondsKey); s != "" {
		seconds, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if s := v.GetString(durationKey); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func requiredAddress(v *viper.Viper, key string) (common.Address, error) {
	raw := v.GetString(key)
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s must be set", key)
	}
	addr, err := address.Parse(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	if address.IsZero(addr) {
		return common.Address{}, fmt.Errorf("%s must not be the zero address", key)
	}
	return addr, nil
}
