package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/roach88/feeledger/internal/engine"
	"github.com/roach88/feeledger/internal/program"
	"github.com/roach88/feeledger/internal/store"
)

// AccountResult is the output of show for one account.
type AccountResult struct {
	Address  string        `json:"address"`
	Owner    string        `json:"owner"`
	Lamports uint64        `json:"lamports"`
	Kind     string        `json:"kind"` // "system", "mint", "token_account", "program_config", "data"
	Config   *ConfigResult `json:"config,omitempty"`
	Mint     *MintState    `json:"mint,omitempty"`
	Token    *TokenState   `json:"token,omitempty"`
}

// MintState is the decoded state of a mint.
type MintState struct {
	Authority string `json:"authority,omitempty"`
	Supply    uint64 `json:"supply"`
	Decimals  uint8  `json:"decimals"`
}

// TokenState is the decoded state of a token account.
type TokenState struct {
	Mint   string `json:"mint"`
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [ref]",
		Short: "Show the program config or an account",
		Long: `Show a ledger account, decoding program configs, mints and token
accounts. Without arguments the program config is shown.

Examples:
  feeledger show
  feeledger show fee-vault
  feeledger show 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ConfigRef
			if len(args) == 1 {
				ref = args[0]
			}
			return runShow(rootOpts, ref, cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, ref string, cmd *cobra.Command) error {
	ctx := context.Background()

	l, err := opts.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	f := newFormatter(opts, cmd)

	addr, err := l.address("ref", ref)
	if err != nil {
		return err
	}
	acc, err := l.engine.GetAccount(ctx, addr)
	if errors.Is(err, store.ErrAccountNotFound) {
		msg := fmt.Sprintf("account %s not found", ref)
		if ref == ConfigRef {
			msg = "program config not initialized"
		}
		return WrapExitError(ExitCommandError, msg, err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read account", err)
	}

	result, err := l.describeAccount(acc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode account", err)
	}

	if opts.Format == "json" {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "%s (%s)\n", ref, result.Address)
	fmt.Fprintf(f.Writer, "  kind:             %s\n", result.Kind)
	fmt.Fprintf(f.Writer, "  owner:            %s\n", l.label(acc.Owner))
	fmt.Fprintf(f.Writer, "  balance:          %s\n", formatLamports(result.Lamports))
	switch {
	case result.Config != nil:
		printConfig(f, l, result.Config)
	case result.Mint != nil:
		authority := "none"
		if result.Mint.Authority != "" {
			authority = l.label(solana.MustPublicKeyFromBase58(result.Mint.Authority))
		}
		fmt.Fprintf(f.Writer, "  mint authority:   %s\n", authority)
		fmt.Fprintf(f.Writer, "  supply:           %s\n", formatAmount(result.Mint.Supply))
		fmt.Fprintf(f.Writer, "  decimals:         %d\n", result.Mint.Decimals)
	case result.Token != nil:
		fmt.Fprintf(f.Writer, "  mint:             %s\n", l.label(solana.MustPublicKeyFromBase58(result.Token.Mint)))
		fmt.Fprintf(f.Writer, "  token owner:      %s\n", l.label(solana.MustPublicKeyFromBase58(result.Token.Owner)))
		fmt.Fprintf(f.Writer, "  amount:           %s\n", formatAmount(result.Token.Amount))
	}
	return nil
}

// describeAccount decodes acc by its owner.
func (l *ledger) describeAccount(acc store.Account) (*AccountResult, error) {
	result := &AccountResult{
		Address:  acc.Address.String(),
		Owner:    acc.Owner.String(),
		Lamports: acc.Lamports,
		Kind:     "data",
	}

	switch {
	case acc.Owner.Equals(solana.SystemProgramID):
		result.Kind = "system"
	case acc.Owner.Equals(l.program.ID()) && acc.Address.Equals(l.configAddress()):
		cfg, err := program.DecodeProgramConfig(acc.Data)
		if err != nil {
			return nil, err
		}
		result.Kind = "program_config"
		result.Config = &ConfigResult{
			Address:        acc.Address.String(),
			Admin:          cfg.Admin.String(),
			FeeDestination: cfg.FeeDestination.String(),
			FeeBasisPoints: cfg.FeeBasisPoints,
			Bump:           cfg.Bump,
		}
	case acc.Owner.Equals(engine.TokenProgramID) && len(acc.Data) == engine.MintSize:
		mint, err := engine.DecodeMint(acc.Data)
		if err != nil {
			return nil, err
		}
		result.Kind = "mint"
		result.Mint = &MintState{Supply: mint.Supply, Decimals: mint.Decimals}
		if mint.MintAuthority != nil {
			result.Mint.Authority = mint.MintAuthority.String()
		}
	case acc.Owner.Equals(engine.TokenProgramID) && len(acc.Data) == engine.TokenAccountSize:
		tok, err := engine.DecodeTokenAccount(acc.Data)
		if err != nil {
			return nil, err
		}
		result.Kind = "token_account"
		result.Token = &TokenState{
			Mint:   tok.Mint.String(),
			Owner:  tok.Owner.String(),
			Amount: tok.Amount,
		}
	}
	return result, nil
}
