package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/congo-pay/token-distributor/internal/address"
	"github.com/congo-pay/token-distributor/internal/auth"
)

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key address",
		Short: "Hash an API key read from stdin into an API_KEYS entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := address.Parse(args[0])
			if err != nil {
				return err
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read api key: %w", err)
			}
			hash, err := auth.HashKey(strings.TrimSpace(line))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", addr.Hex(), hash)
			return nil
		},
	}
}
