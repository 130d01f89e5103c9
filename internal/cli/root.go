package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/feeledger/internal/config"
	"github.com/roach88/feeledger/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string // overrides the configured database
	KeysDir    string // overrides the configured keys directory
	Mainnet    bool   // selects the mainnet program profile

	cfg    *config.Config
	logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the feeledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "feeledger",
		Short: "feeledger - fee-splitting payment ledger",
		Long: `A local ledger running the fee-splitting payment program.

An admin initializes the program config with a fee rate and a fee
destination token account. Payments between token accounts then send
floor(amount * fee_basis_points / 10000) to the fee destination and
the rest to the receiver.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to ledger database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.KeysDir, "keys", "", "keypair directory (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.Mainnet, "mainnet", false, "use the mainnet program profile (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewKeygenCommand(opts))
	cmd.AddCommand(NewAddressCommand(opts))
	cmd.AddCommand(NewAirdropCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewPayCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup validates the global flags and loads the configuration and logger.
// It runs once; commands constructed without the root call it lazily.
func (o *RootOptions) setup() error {
	if o.cfg != nil {
		return nil
	}
	if o.Format == "" {
		o.Format = "text"
	}
	if !isValidFormat(o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.KeysDir != "" {
		cfg.KeysDir = o.KeysDir
	}
	if o.Mainnet {
		cfg.Program.Profile = config.ProfileMainnet
	}

	logger, err := logging.New(cfg.Logging, o.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create logger", err)
	}

	o.cfg = cfg
	o.logger = logger
	return nil
}

// Config returns the loaded configuration.
func (o *RootOptions) Config() (*config.Config, error) {
	if err := o.setup(); err != nil {
		return nil, err
	}
	return o.cfg, nil
}

// Logger returns the configured logger.
func (o *RootOptions) Logger() *zap.Logger {
	if o.logger == nil {
		return zap.NewNop()
	}
	return o.logger
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
