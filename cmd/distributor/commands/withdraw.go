package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/congo-pay/token-distributor/internal/amount"
	"github.com/congo-pay/token-distributor/internal/client"
)

func newWithdrawCmd(rt *runtime) *cobra.Command {
	var (
		value    string
		decimals int32
		key      string
	)

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Move part of the ledger balance to the vault (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := decimal.NewFromString(value)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			base, err := amount.ToBaseUnits(d, decimals)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}

			api, err := rt.client(true)
			if err != nil {
				return err
			}
			if err := ensureReplay(cmd.Context(), api, key, "--idempotency-key"); err != nil {
				return err
			}
			receipt, err := api.Withdraw(cmd.Context(), key, base.Dec())
			if err != nil {
				return err
			}
			printReceipt(cmd, receipt)
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "amount", "", "amount in token units")
	cmd.Flags().Int32Var(&decimals, "decimals", amount.DefaultDecimals, "token decimals; 0 treats --amount as base units")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "reuse to retry safely")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newWithdrawAllCmd(rt *runtime) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "withdraw-all",
		Short: "Move the whole ledger balance to the vault (owner only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := rt.client(true)
			if err != nil {
				return err
			}
			if err := ensureReplay(cmd.Context(), api, key, "--idempotency-key"); err != nil {
				return err
			}
			receipt, err := api.WithdrawAll(cmd.Context(), key)
			if err != nil {
				return err
			}
			printReceipt(cmd, receipt)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "idempotency-key", "", "reuse to retry safely")
	return cmd
}

func printReceipt(cmd *cobra.Command, r client.Receipt) {
	fmt.Fprintf(cmd.OutOrStdout(), "receipt %s: %s %s, ledger balance %s\n", r.ReceiptID, r.Kind, r.Total, r.LedgerBalance)
}
