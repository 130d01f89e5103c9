package cli

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/roach88/feeledger/internal/program"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Admin          string
	FeeDestination string
	NewAdmin       string
	FeeBasisPoints uint64
	Payer          string
}

// UpdateResult is the output of the update command.
type UpdateResult struct {
	TxOutcome
	Previous ConfigResult `json:"previous"`
	Config   ConfigResult `json:"config"`
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the program config",
		Long: `Send update_program_config, signed by the current admin.

Every update writes the admin, the fee destination and the fee rate.
Omitted flags keep the current value: --new-admin defaults to the
current admin, --fee-destination and --fee-bps to the stored ones.

Exit codes:
  0 - Config updated
  1 - The program rejected the instruction (e.g. Unauthorized, InvalidFeeRate)
  2 - Command error (unknown key, config not initialized, etc.)

Examples:
  feeledger update --admin admin --fee-bps 250
  feeledger update --admin admin --new-admin treasury
  feeledger update --admin admin --fee-destination new-vault --fee-bps 0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Admin, "admin", "", "signing key of the current admin (required)")
	cmd.Flags().StringVar(&opts.FeeDestination, "fee-destination", "", "token account receiving fees")
	cmd.Flags().StringVar(&opts.NewAdmin, "new-admin", "", "admin after the update")
	cmd.Flags().Uint64Var(&opts.FeeBasisPoints, "fee-bps", 0, "fee rate in basis points (0-10000)")
	cmd.Flags().StringVar(&opts.Payer, "payer", "", "key paying the transaction (default: admin)")

	return cmd
}

func runUpdate(opts *UpdateOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	l, err := opts.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	f := newFormatter(opts.RootOptions, cmd)

	admin, err := l.key("admin", opts.Admin)
	if err != nil {
		return err
	}
	current, err := l.fetchConfig(ctx)
	if err != nil {
		return err
	}

	feeDestination := solana.MustPublicKeyFromBase58(current.FeeDestination)
	if opts.FeeDestination != "" {
		if feeDestination, err = l.address("fee-destination", opts.FeeDestination); err != nil {
			return err
		}
	}
	newAdmin := admin.PublicKey()
	if opts.NewAdmin != "" {
		if newAdmin, err = l.address("new-admin", opts.NewAdmin); err != nil {
			return err
		}
	}
	bps := uint64(current.FeeBasisPoints)
	if cmd.Flags().Changed("fee-bps") {
		bps = opts.FeeBasisPoints
	}

	signers := []solana.PrivateKey{admin}
	if opts.Payer != "" {
		payer, err := l.key("payer", opts.Payer)
		if err != nil {
			return err
		}
		if !payer.PublicKey().Equals(admin.PublicKey()) {
			signers = []solana.PrivateKey{payer, admin}
		}
	}

	inst, err := program.NewUpdateInstruction(l.program.ID(), admin.PublicKey(), feeDestination, newAdmin, bps)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build instruction", err)
	}
	receipt, err := l.submit(ctx, signers, inst)
	if receipt == nil {
		return err
	}

	result := UpdateResult{TxOutcome: outcome(receipt), Previous: *current}
	if err == nil {
		updated, ferr := l.fetchConfig(ctx)
		if ferr != nil {
			return ferr
		}
		result.Config = *updated
	}
	return f.Transaction(receipt, err, result, func() {
		fmt.Fprintln(f.Writer, "✓ updated program config")
		printConfig(f, l, &result.Config)
		if result.Previous.Admin != result.Config.Admin {
			fmt.Fprintf(f.Writer, "  admin transferred from %s\n",
				l.label(solana.MustPublicKeyFromBase58(result.Previous.Admin)))
		}
	})
}
