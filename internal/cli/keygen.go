package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Force bool
}

// KeyResult is the output of keygen and address.
type KeyResult struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Path    string `json:"path,omitempty"`
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen <name>",
		Short: "Generate a named keypair",
		Long: `Generate a random ed25519 keypair and store it as <keys>/<name>.json
in the solana-keygen file format.

Examples:
  feeledger keygen admin
  feeledger keygen sender --keys ./wallets
  feeledger keygen admin --force`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing key")

	return cmd
}

func runKeygen(opts *KeygenOptions, name string, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	f := newFormatter(opts.RootOptions, cmd)

	ks := NewKeystore(cfg.KeysDir)
	key, err := ks.Generate(name, opts.Force)
	if errors.Is(err, ErrKeyExists) {
		return WrapExitError(ExitCommandError, "refusing to overwrite key (use --force)", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate key", err)
	}

	result := KeyResult{Name: name, Address: key.PublicKey().String(), Path: ks.Path(name)}
	if opts.Format == "json" {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ %s: %s\n", result.Name, result.Address)
	fmt.Fprintf(f.Writer, "  written to %s\n", result.Path)
	return nil
}

// NewAddressCommand creates the address command.
func NewAddressCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address [ref...]",
		Short: "Show the addresses of keys",
		Long: `Resolve key references to their public keys. A reference is a key
name, a keypair file, a base58 key, or "config" for the program config
account. Without arguments every key of the keys directory is listed.

Examples:
  feeledger address
  feeledger address admin config`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddress(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runAddress(opts *RootOptions, refs []string, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	f := newFormatter(opts, cmd)
	ks := NewKeystore(cfg.KeysDir)

	var results []KeyResult
	if len(refs) == 0 {
		keys, err := ks.List()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list keys", err)
		}
		for _, k := range keys {
			results = append(results, KeyResult{Name: k.Name, Address: k.Address})
		}
	} else {
		programID, err := cfg.ProgramID()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid program id", err)
		}
		for _, ref := range refs {
			addr, err := ks.Resolve(ref, programID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to resolve address", err)
			}
			results = append(results, KeyResult{Name: ref, Address: addr.String()})
		}
	}

	if opts.Format == "json" {
		if results == nil {
			results = []KeyResult{}
		}
		return f.Success(results)
	}
	if len(results) == 0 {
		fmt.Fprintf(f.Writer, "No keys in %s.\n", cfg.KeysDir)
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(f.Writer, "%-16s %s\n", r.Name, r.Address)
	}
	return nil
}
