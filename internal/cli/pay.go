package cli

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/roach88/feeledger/internal/program"
)

// PayOptions holds flags for the pay command.
type PayOptions struct {
	*RootOptions
	Sender         string
	From           string
	To             string
	FeeDestination string
	Payer          string
}

// PayResult is the output of the pay command.
type PayResult struct {
	TxOutcome
	Amount uint64 `json:"amount"`
	Fee    uint64 `json:"fee"`
	Net    uint64 `json:"net"`
}

// NewPayCommand creates the pay command.
func NewPayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pay <amount>",
		Short: "Send a payment through the fee program",
		Long: `Send payment. The sender signs; floor(amount * fee_basis_points / 10000)
goes to the fee destination and the rest to the receiving token account,
atomically.

The fee destination defaults to the one stored in the program config.

Exit codes:
  0 - Payment settled
  1 - The payment failed (e.g. InsufficientFunds, FeeDestinationMismatch)
  2 - Command error (unknown key, config not initialized, etc.)

Examples:
  feeledger pay 10000 --sender alice --from alice-usdc --to bob-usdc
  feeledger pay 10000 --sender alice --from alice-usdc --to bob-usdc --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Sender, "sender", "", "signing key owning the source account (required)")
	cmd.Flags().StringVar(&opts.From, "from", "", "source token account (required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "receiving token account (required)")
	cmd.Flags().StringVar(&opts.FeeDestination, "fee-destination", "", "fee token account (default: from program config)")
	cmd.Flags().StringVar(&opts.Payer, "payer", "", "key paying the transaction (default: sender)")

	return cmd
}

func runPay(opts *PayOptions, amountArg string, cmd *cobra.Command) error {
	ctx := context.Background()

	amount, err := parseAmount("amount", amountArg)
	if err != nil {
		return err
	}
	l, err := opts.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	f := newFormatter(opts.RootOptions, cmd)

	sender, err := l.key("sender", opts.Sender)
	if err != nil {
		return err
	}
	from, err := l.address("from", opts.From)
	if err != nil {
		return err
	}
	to, err := l.address("to", opts.To)
	if err != nil {
		return err
	}

	var feeDestination solana.PublicKey
	if opts.FeeDestination != "" {
		if feeDestination, err = l.address("fee-destination", opts.FeeDestination); err != nil {
			return err
		}
	} else {
		cfg, err := l.fetchConfig(ctx)
		if err != nil {
			return err
		}
		feeDestination = solana.MustPublicKeyFromBase58(cfg.FeeDestination)
	}

	signers := []solana.PrivateKey{sender}
	if opts.Payer != "" {
		payer, err := l.key("payer", opts.Payer)
		if err != nil {
			return err
		}
		if !payer.PublicKey().Equals(sender.PublicKey()) {
			signers = []solana.PrivateKey{payer, sender}
		}
	}

	inst, err := program.NewPaymentInstruction(l.program.ID(), feeDestination, from, to, sender.PublicKey(), amount)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build instruction", err)
	}
	receipt, err := l.submit(ctx, signers, inst)
	if receipt == nil {
		return err
	}

	result := PayResult{TxOutcome: outcome(receipt), Amount: amount}
	if err == nil {
		split, derr := program.DecodePaymentResult(receipt.ReturnData)
		if derr != nil {
			return WrapExitError(ExitCommandError, "failed to decode payment result", derr)
		}
		result.Fee = split.Fee
		result.Net = split.Net
	}
	return f.Transaction(receipt, err, result, func() {
		fmt.Fprintf(f.Writer, "✓ paid %s from %s to %s\n", formatAmount(amount), l.label(from), l.label(to))
		fmt.Fprintf(f.Writer, "  fee: %s to %s\n", formatAmount(result.Fee), l.label(feeDestination))
		fmt.Fprintf(f.Writer, "  net: %s\n", formatAmount(result.Net))
	})
}
