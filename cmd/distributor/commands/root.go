// Package commands implements the distributor CLI. Every command talks to a
// running distributor API.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/congo-pay/token-distributor/internal/address"
	"github.com/congo-pay/token-distributor/internal/client"
	"github.com/congo-pay/token-distributor/internal/logging"
)

type runtime struct {
	v      *viper.Viper
	logger *slog.Logger
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree. Flags fall back to DISTRIBUTOR_API_URL,
// CALLER_ADDRESS, CALLER_API_KEY and LOG_LEVEL, optionally from a .env file.
func NewRootCmd() *cobra.Command {
	rt := &runtime{v: viper.New()}

	root := &cobra.Command{
		Use:           "distributor",
		Short:         "Distribute ledger tokens to holders and manage withdrawals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			rt.logger = logging.NewWithWriter(cmd.ErrOrStderr(), rt.v.GetString("log_level"), "text")
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-url", "http://localhost:8080", "distributor API base url")
	flags.String("caller", "", "address to act as")
	flags.String("api-key", "", "API key bound to --caller")
	flags.Float64("rps", 5, "maximum requests per second")
	flags.Duration("timeout", 30*time.Second, "per request timeout")
	flags.String("log-level", "info", "log level")
	bindFlags(rt.v, flags, map[string]string{
		"api_url":   "api-url",
		"caller":    "caller",
		"api_key":   "api-key",
		"rps":       "rps",
		"timeout":   "timeout",
		"log_level": "log-level",
	})
	_ = rt.v.BindEnv("api_url", "DISTRIBUTOR_API_URL")
	_ = rt.v.BindEnv("caller", "CALLER_ADDRESS")
	_ = rt.v.BindEnv("api_key", "CALLER_API_KEY")
	_ = rt.v.BindEnv("log_level", "LOG_LEVEL")

	root.AddCommand(
		newDistributeCmd(rt),
		newWithdrawCmd(rt),
		newWithdrawAllCmd(rt),
		newBalanceCmd(rt),
		newSumCmd(rt),
		newInfoCmd(rt),
		newHashKeyCmd(),
	)
	return root
}

func errNoReplay(flag string) error {
	return fmt.Errorf("%s needs a server that replays Idempotency-Key requests; this one has idempotency disabled (no REDIS_URL) and would apply a repeated request again", flag)
}

// ensureReplay fails when key is set but the server would ignore it.
func ensureReplay(ctx context.Context, api *client.Client, key, flag string) error {
	if key == "" {
		return nil
	}
	info, err := api.Info(ctx)
	if err != nil {
		return fmt.Errorf("fetch ledger info: %w", err)
	}
	if !info.Idempotency {
		return errNoReplay(flag)
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

func (rt *runtime) client(requireCaller bool) (*client.Client, error) {
	cfg := client.Config{
		BaseURL:           rt.v.GetString("api_url"),
		APIKey:            rt.v.GetString("api_key"),
		RequestsPerSecond: rt.v.GetFloat64("rps"),
		Timeout:           rt.v.GetDuration("timeout"),
		Logger:            rt.logger,
	}
	if raw := rt.v.GetString("caller"); raw != "" {
		caller, err := address.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("--caller: %w", err)
		}
		cfg.Caller = caller
	} else if requireCaller {
		return nil, fmt.Errorf("--caller (or CALLER_ADDRESS) is required")
	}
	if requireCaller && cfg.APIKey == "" {
		return nil, fmt.Errorf("--api-key (or CALLER_API_KEY) is required")
	}
	return client.New(cfg)
}
