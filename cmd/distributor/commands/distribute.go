package commands

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/congo-pay/token-distributor/internal/amount"
	"github.com/congo-pay/token-distributor/internal/holders"
)

func newDistributeCmd(rt *runtime) *cobra.Command {
	var (
		holdersPath  string
		receiptsPath string
		blockSize    int
		decimals     int32
		runID        string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Send a holders file to the ledger in batches",
		Long: `Reads [{"wallet": "0x..", "amount": "10.5"}] records, converts amounts to base
units, submits one batch transfer per --block-size holders and writes one receipt id
per line to --transactions. Re-running with the same --run-id replays batches that
already went through instead of paying twice; --run-id is refused when the server has
idempotency disabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := holders.Load(holdersPath)
			if err != nil {
				return err
			}
			batches, err := holders.Chunk(list, blockSize, decimals)
			if err != nil {
				return err
			}

			grand := new(uint256.Int)
			for _, b := range batches {
				total, err := b.Total()
				if err != nil {
					return err
				}
				if _, overflow := grand.AddOverflow(grand, total); overflow {
					return amount.ErrOverflow
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "holders: %d, batches: %d, total: %s (%s tokens)\n",
				len(list), len(batches), grand.Dec(), amount.FromBaseUnits(grand, decimals).String())
			if dryRun {
				return nil
			}

			api, err := rt.client(true)
			if err != nil {
				return err
			}
			info, err := api.Info(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch ledger info: %w", err)
			}
			if runID != "" && !info.Idempotency {
				return errNoReplay("--run-id")
			}
			balance, err := amount.Parse(info.Balance)
			if err != nil {
				return fmt.Errorf("ledger balance: %w", err)
			}
			if grand.Gt(balance) {
				if runID == "" {
					return fmt.Errorf("ledger holds %s, distribution needs %s", balance.Dec(), grand.Dec())
				}
				// Batches of an earlier attempt replay without spending again.
				rt.logger.Warn("ledger balance below distribution total, resuming run",
					slog.String("run_id", runID), slog.String("balance", balance.Dec()), slog.String("total", grand.Dec()))
			}

			if runID == "" {
				runID = uuid.NewString()
			}
			rt.logger.Info("distribution started", slog.String("run_id", runID), slog.Int("batches", len(batches)))

			receipts := make([]string, 0, len(batches))
			for i, b := range batches {
				key := fmt.Sprintf("%s-%d", runID, i)
				receipt, err := api.BatchTransfer(cmd.Context(), key, b.Holders, amount.FormatAll(b.Amounts))
				if err != nil {
					if len(receipts) > 0 {
						if saveErr := holders.SaveReceipts(receiptsPath, receipts); saveErr != nil {
							rt.logger.Error("save partial receipts", slog.Any("error", saveErr))
						}
					}
					return fmt.Errorf("batch %d of %d (run %s): %w", i+1, len(batches), runID, err)
				}
				receipts = append(receipts, receipt.ReceiptID)
				rt.logger.Info("batch sent",
					slog.Int("batch", i+1),
					slog.Int("holders", len(b.Holders)),
					slog.String("receipt_id", receipt.ReceiptID),
					slog.String("ledger_balance", receipt.LedgerBalance),
				)
			}

			if err := holders.SaveReceipts(receiptsPath, receipts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Number of transactions performed: %d\n", len(receipts))
			return nil
		},
	}

	cmd.Flags().StringVar(&holdersPath, "holders", "holders.json", "holders file")
	cmd.Flags().StringVar(&receiptsPath, "transactions", "transactions.txt", "receipts output file")
	cmd.Flags().IntVar(&blockSize, "block-size", 100, "holders per batch transfer")
	cmd.Flags().Int32Var(&decimals, "decimals", amount.DefaultDecimals, "token decimals")
	cmd.Flags().StringVar(&runID, "run-id", "", "idempotency prefix; reuse to resume a run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and print totals without sending")
	return cmd
}
