package cli

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/roach88/feeledger/internal/engine"
)

// TokenOptions holds flags shared by the token subcommands.
type TokenOptions struct {
	*RootOptions
	Payer     string
	Authority string
	Mint      string
	Owner     string
	Decimals  uint8
}

// NewTokenCommand creates the token command group.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage mints and token accounts",
		Long: `Create mints and token accounts, mint tokens and read balances.

Examples:
  feeledger token create-mint usdc --payer admin --decimals 6
  feeledger token create-account fee-vault --mint usdc --owner admin
  feeledger token mint-to usdc sender-usdc 1000000 --authority admin
  feeledger token balance fee-vault`,
	}

	cmd.AddCommand(newCreateMintCommand(&TokenOptions{RootOptions: rootOpts}))
	cmd.AddCommand(newCreateAccountCommand(&TokenOptions{RootOptions: rootOpts}))
	cmd.AddCommand(newMintToCommand(&TokenOptions{RootOptions: rootOpts}))
	cmd.AddCommand(newBalanceCommand(rootOpts))

	return cmd
}

// MintResult is the output of token create-mint.
type MintResult struct {
	TxOutcome
	Mint      string `json:"mint"`
	Authority string `json:"authority"`
	Decimals  uint8  `json:"decimals"`
}

func newCreateMintCommand(opts *TokenOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "create-mint <mint-key>",
		Short:         "Create a mint at the address of a key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateMint(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payer, "payer", "", "key paying for the account (required)")
	cmd.Flags().StringVar(&opts.Authority, "authority", "", "mint authority (default: payer)")
	cmd.Flags().Uint8Var(&opts.Decimals, "decimals", 0, "decimal places")

	return cmd
}

func runCreateMint(opts *TokenOptions, mintRef string, cmd *cobra.Command) error {
	ctx := context.Background()

	l, err := opts.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	f := newFormatter(opts.RootOptions, cmd)

	mint, err := l.key("mint", mintRef)
	if err != nil {
		return err
	}
	payer, err := l.key("payer", opts.Payer)
	if err != nil {
		return err
	}
	authority := payer.PublicKey()
	if opts.Authority != "" {
		if authority, err = l.address("authority", opts.Authority); err != nil {
			return err
		}
	}

	instrs := engine.NewCreateMintInstructions(l.engine.Rent(), payer.PublicKey(), mint.PublicKey(), authority, opts.Decimals)
	receipt, err := l.submit(ctx, []solana.PrivateKey{payer, mint}, instrs...)
	if receipt == nil {
		return err
	}

	result := MintResult{
		TxOutcome: outcome(receipt),
		Mint:      mint.PublicKey().String(),
		Authority: authority.String(),
		Decimals:  opts.Decimals,
	}
	return f.Transaction(receipt, err, result, func() {
		fmt.Fprintf(f.Writer, "✓ created mint %s (%s), %d decimals, authority %s\n",
			mintRef, result.Mint, result.Decimals, l.label(authority))
	})
}

// TokenAccountResult is the output of token create-account.
type TokenAccountResult struct {
	TxOutcome
	Account string `json:"account"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
}

func newCreateAccountCommand(opts *TokenOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "create-account <account-key>",
		Short:         "Create a token account at the address of a key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateAccount(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mint, "mint", "", "mint of the account (required)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner of the account (required)")
	cmd.Flags().StringVar(&opts.Payer, "payer", "", "key paying for the account (default: owner)")

	return cmd
}

func runCreateAccount(opts *TokenOptions, accountRef string, cmd *cobra.Command) error {
	ctx := context.Background()

	l, err := opts.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	f := newFormatter(opts.RootOptions, cmd)

	account, err := l.key("account", accountRef)
	if err != nil {
		return err
	}
	mint, err := l.address("mint", opts.Mint)
	if err != nil {
		return err
	}
	owner, err := l.address("owner", opts.Owner)
	if err != nil {
		return err
	}
	payerRef := opts.Payer
	if payerRef == "" {
		payerRef = opts.Owner
	}
	payer, err := l.key("payer", payerRef)
	if err != nil {
		return err
	}

	instrs := engine.NewCreateTokenAccountInstructions(l.engine.Rent(), payer.PublicKey(), account.PublicKey(), mint, owner)
	receipt, err := l.submit(ctx, []solana.PrivateKey{payer, account}, instrs...)
	if receipt == nil {
		return err
	}

	result := TokenAccountResult{
		TxOutcome: outcome(receipt),
		Account:   account.PublicKey().String(),
		Mint:      mint.String(),
		Owner:     owner.String(),
	}
	return f.Transaction(receipt, err, result, func() {
		fmt.Fprintf(f.Writer, "✓ created token account %s (%s) for %s, mint %s\n",
			accountRef, result.Account, l.label(owner), l.label(mint))
	})
}

// MintToResult is the output of token mint-to.
type MintToResult struct {
	TxOutcome
	Mint    string `json:"mint"`
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
	Balance uint64 `json:"balance"`
}

func newMintToCommand(opts *TokenOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mint-to <mint> <account> <amount>",
		Short:         "Mint tokens to a token account",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMintTo(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Authority, "authority", "", "mint authority key (required)")

	return cmd
}

func runMintTo(opts *TokenOptions, mintRef, accountRef, amountArg string, cmd *cobra.Command) error {
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

	mint, err := l.address("mint", mintRef)
	if err != nil {
		return err
	}
	account, err := l.address("account", accountRef)
	if err != nil {
		return err
	}
	authority, err := l.key("authority", opts.Authority)
	if err != nil {
		return err
	}

	inst := engine.NewMintToInstruction(amount, mint, account, authority.PublicKey())
	receipt, err := l.submit(ctx, []solana.PrivateKey{authority}, inst)
	if receipt == nil {
		return err
	}

	result := MintToResult{
		TxOutcome: outcome(receipt),
		Mint:      mint.String(),
		Account:   account.String(),
		Amount:    amount,
	}
	if err == nil {
		if tok, terr := l.tokenAccount(ctx, account); terr == nil {
			result.Balance = tok.Amount
		}
	}
	return f.Transaction(receipt, err, result, func() {
		fmt.Fprintf(f.Writer, "✓ minted %s to %s\n", formatAmount(amount), accountRef)
		fmt.Fprintf(f.Writer, "  balance: %s\n", formatAmount(result.Balance))
	})
}

// BalanceResult is the output of token balance.
type BalanceResult struct {
	Account string `json:"account"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

func newBalanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "balance <account>...",
		Short:         "Show token account balances",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(opts, args, cmd)
		},
	}
}

func runBalance(opts *RootOptions, refs []string, cmd *cobra.Command) error {
	ctx := context.Background()

	l, err := opts.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	f := newFormatter(opts, cmd)

	results := make([]BalanceResult, 0, len(refs))
	for _, ref := range refs {
		addr, err := l.address("account", ref)
		if err != nil {
			return err
		}
		tok, err := l.tokenAccount(ctx, addr)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("%s is not a token account", ref), err)
		}
		results = append(results, BalanceResult{
			Account: addr.String(),
			Mint:    tok.Mint.String(),
			Owner:   tok.Owner.String(),
			Amount:  tok.Amount,
		})
	}

	if opts.Format == "json" {
		return f.Success(results)
	}
	for i, r := range results {
		fmt.Fprintf(f.Writer, "%-16s %s\n", refs[i], formatAmount(r.Amount))
	}
	return nil
}
