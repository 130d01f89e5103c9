package cli

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/roach88/feeledger/internal/program"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Authority      string
	FeeDestination string
}

// ConfigResult is the program config as printed by init, update and show.
type ConfigResult struct {
	Address        string `json:"address"`
	Admin          string `json:"admin"`
	FeeDestination string `json:"fee_destination"`
	FeeBasisPoints uint16 `json:"fee_basis_points"`
	Bump           uint8  `json:"bump"`
}

// InitResult is the output of the init command.
type InitResult struct {
	TxOutcome
	Config ConfigResult `json:"config"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the program config",
		Long: `Send initialize_program_config. The authority pays for the config
account and becomes its admin; the fee rate starts at 100 basis points.

The config can be initialized once. When program.init_authority is
configured, only that key may initialize.

Exit codes:
  0 - Config initialized
  1 - The program rejected the instruction (e.g. AlreadyInitialized)
  2 - Command error (unknown key, database not found, etc.)

Examples:
  feeledger init --authority admin --fee-destination fee-vault`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Authority, "authority", "", "signing key that becomes the admin (required)")
	cmd.Flags().StringVar(&opts.FeeDestination, "fee-destination", "", "token account receiving fees (required)")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	l, err := opts.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	f := newFormatter(opts.RootOptions, cmd)

	authority, err := l.key("authority", opts.Authority)
	if err != nil {
		return err
	}
	feeDestination, err := l.address("fee-destination", opts.FeeDestination)
	if err != nil {
		return err
	}

	inst, err := program.NewInitializeInstruction(l.program.ID(), authority.PublicKey(), feeDestination)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build instruction", err)
	}
	receipt, err := l.submit(ctx, []solana.PrivateKey{authority}, inst)
	if receipt == nil {
		return err
	}

	result := InitResult{TxOutcome: outcome(receipt)}
	if err == nil {
		cfg, ferr := l.fetchConfig(ctx)
		if ferr != nil {
			return ferr
		}
		result.Config = *cfg
	}
	return f.Transaction(receipt, err, result, func() {
		fmt.Fprintf(f.Writer, "✓ initialized program config %s\n", result.Config.Address)
		printConfig(f, l, &result.Config)
	})
}

// fetchConfig reads the program config.
func (l *ledger) fetchConfig(ctx context.Context) (*ConfigResult, error) {
	cfg, err := program.FetchConfig(ctx, l.engine, l.program.ID())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read program config", err)
	}
	return &ConfigResult{
		Address:        l.configAddress().String(),
		Admin:          cfg.Admin.String(),
		FeeDestination: cfg.FeeDestination.String(),
		FeeBasisPoints: cfg.FeeBasisPoints,
		Bump:           cfg.Bump,
	}, nil
}

func printConfig(f *OutputFormatter, l *ledger, cfg *ConfigResult) {
	admin := solana.MustPublicKeyFromBase58(cfg.Admin)
	feeDestination := solana.MustPublicKeyFromBase58(cfg.FeeDestination)
	fmt.Fprintf(f.Writer, "  admin:            %s\n", l.label(admin))
	fmt.Fprintf(f.Writer, "  fee destination:  %s\n", l.label(feeDestination))
	fmt.Fprintf(f.Writer, "  fee:              %d bps (%s%%)\n", cfg.FeeBasisPoints, bpsPercent(cfg.FeeBasisPoints))
}

// bpsPercent renders basis points as a percentage, e.g. 125 -> "1.25".
func bpsPercent(bps uint16) string {
	if bps%100 == 0 {
		return fmt.Sprintf("%d", bps/100)
	}
	s := fmt.Sprintf("%d.%02d", bps/100, bps%100)
	if s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}
