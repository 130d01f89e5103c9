package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// AirdropResult is the output of the airdrop command.
type AirdropResult struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Balance  uint64 `json:"balance"`
}

// NewAirdropCommand creates the airdrop command.
func NewAirdropCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "airdrop <address> <lamports>",
		Short: "Credit lamports to an account",
		Long: `Credit lamports to an account from the ledger faucet, creating a
system account if it does not exist. Airdrops are not transactions and
do not appear in the trace.

Examples:
  feeledger airdrop admin 2000000000`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAirdrop(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runAirdrop(opts *RootOptions, ref, amountArg string, cmd *cobra.Command) error {
	ctx := context.Background()

	lamports, err := parseAmount("lamports", amountArg)
	if err != nil {
		return err
	}
	l, err := opts.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	f := newFormatter(opts, cmd)

	addr, err := l.address("address", ref)
	if err != nil {
		return err
	}
	if err := l.engine.Airdrop(ctx, addr, lamports); err != nil {
		return WrapExitError(ExitFailure, "airdrop failed", err)
	}
	acc, err := l.engine.GetAccount(ctx, addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read account", err)
	}

	result := AirdropResult{Address: addr.String(), Lamports: lamports, Balance: acc.Lamports}
	if opts.Format == "json" {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ airdropped %s to %s\n", formatAmount(lamports), l.label(addr))
	fmt.Fprintf(f.Writer, "  balance: %s\n", formatLamports(acc.Lamports))
	return nil
}
