package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/congo-pay/token-distributor/internal/address"
	"github.com/congo-pay/token-distributor/internal/amount"
)

func newBalanceCmd(rt *runtime) *cobra.Command {
	var decimals int32

	cmd := &cobra.Command{
		Use:   "balance [account]",
		Short: "Show the token balance of an account (defaults to --caller)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := rt.v.GetString("caller")
			if len(args) == 1 {
				raw = args[0]
			}
			account, err := address.Parse(raw)
			if err != nil {
				return err
			}

			api, err := rt.client(false)
			if err != nil {
				return err
			}
			bal, err := api.Balance(cmd.Context(), account)
			if err != nil {
				return err
			}
			v, err := amount.Parse(bal)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s tokens)\n", account.Hex(), v.Dec(), amount.FromBaseUnits(v, decimals).String())
			return nil
		},
	}

	cmd.Flags().Int32Var(&decimals, "decimals", amount.DefaultDecimals, "token decimals")
	return cmd
}

func newSumCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sum amounts...",
		Short: "Add base-unit amounts the way a batch transfer totals them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := amount.ParseAll(args); err != nil {
				return err
			}
			api, err := rt.client(false)
			if err != nil {
				return err
			}
			total, err := api.Sum(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), total)
			return nil
		},
	}
}

func newInfoCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the ledger identities and balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rt.client(false)
			if err != nil {
				return err
			}
			info, err := api.Info(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "token\t%s\n", info.TokenAddress)
			fmt.Fprintf(w, "ledger\t%s\n", info.LedgerAddress)
			fmt.Fprintf(w, "owner\t%s\n", info.Owner)
			fmt.Fprintf(w, "vault\t%s\n", info.VaultAddress)
			fmt.Fprintf(w, "batch policy\t%s\n", info.BatchPolicy)
			fmt.Fprintf(w, "balance\t%s\n", info.Balance)
			return w.Flush()
		},
	}
}
