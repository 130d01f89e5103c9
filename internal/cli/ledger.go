package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/roach88/feeledger/internal/engine"
	"github.com/roach88/feeledger/internal/program"
	"github.com/roach88/feeledger/internal/store"
)

// ledger is an open ledger database with the fee program deployed.
type ledger struct {
	store   *store.Store
	engine  *engine.Engine
	program *program.Program
	keys    *Keystore
	logger  *zap.Logger
}

// openLedger opens the configured database and registers the program.
// The caller must Close the ledger.
func (o *RootOptions) openLedger(ctx context.Context) (*ledger, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	popts, err := cfg.ProgramOptions()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid program config", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng, err := engine.New(ctx, st,
		engine.WithLogger(o.Logger()),
		engine.WithRent(cfg.EngineRent()))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start ledger", err)
	}
	p := program.New(popts...)
	if err := eng.Register(p); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to register program", err)
	}

	return &ledger{
		store:   st,
		engine:  eng,
		program: p,
		keys:    NewKeystore(cfg.KeysDir),
		logger:  o.Logger(),
	}, nil
}

func (l *ledger) Close() error {
	return l.store.Close()
}

// key loads a signing key reference.
func (l *ledger) key(flag, ref string) (solana.PrivateKey, error) {
	if ref == "" {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--%s is required", flag))
	}
	key, err := l.keys.Load(ref)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "--"+flag, err)
	}
	return key, nil
}

// address resolves an address reference.
func (l *ledger) address(flag, ref string) (solana.PublicKey, error) {
	if ref == "" {
		return solana.PublicKey{}, NewExitError(ExitCommandError, fmt.Sprintf("--%s is required", flag))
	}
	addr, err := l.keys.Resolve(ref, l.program.ID())
	if err != nil {
		return solana.PublicKey{}, WrapExitError(ExitCommandError, "--"+flag, err)
	}
	return addr, nil
}

func (l *ledger) configAddress() solana.PublicKey {
	addr, _, _ := program.DeriveConfigAddress(l.program.ID())
	return addr
}

// label names addr by key name or program, falling back to base58.
func (l *ledger) label(addr solana.PublicKey) string {
	switch {
	case addr.Equals(solana.SystemProgramID):
		return "system"
	case addr.Equals(engine.TokenProgramID):
		return "token"
	case addr.Equals(l.program.ID()):
		return l.program.Name()
	}
	return l.keys.Label(addr, l.program.ID())
}

// tokenAccount reads and decodes a token account.
func (l *ledger) tokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error) {
	acc, err := l.engine.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(engine.TokenProgramID) || len(acc.Data) != engine.TokenAccountSize {
		return nil, fmt.Errorf("account %s is not a token account", addr)
	}
	return engine.DecodeTokenAccount(acc.Data)
}

// TxOutcome is the result of a submitted transaction.
type TxOutcome struct {
	Signature string   `json:"signature"`
	Slot      int64    `json:"slot"`
	Status    string   `json:"status"`
	ErrorTag  string   `json:"error_tag,omitempty"`
	Error     string   `json:"error,omitempty"`
	Logs      []string `json:"logs,omitempty"`
}

// submit signs instrs with signers, the first paying, and sends them as
// one transaction.
//
// Rejected transactions return an ExitCommandError. Executed transactions
// return their receipt; a failed execution also returns an ExitFailure
// error carrying the error tag.
func (l *ledger) submit(ctx context.Context, signers []solana.PrivateKey, instrs ...solana.Instruction) (*engine.Receipt, error) {
	tx, err := solana.NewTransaction(instrs, l.engine.LatestBlockhash(),
		solana.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build transaction", err)
	}

	byKey := make(map[solana.PublicKey]solana.PrivateKey, len(signers))
	for _, s := range signers {
		byKey[s.PublicKey()] = s
	}
	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if key, ok := byKey[pub]; ok {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to sign transaction", err)
	}

	receipt, err := l.engine.SendTransaction(ctx, tx)
	if receipt == nil {
		if err == nil {
			err = errors.New("no receipt")
		}
		return nil, WrapExitError(ExitCommandError, "transaction rejected", err)
	}
	if err != nil {
		return receipt, WrapExitError(ExitFailure,
			fmt.Sprintf("transaction %s failed [%s]", receipt.Signature, engine.ErrorTag(err)), err)
	}
	return receipt, nil
}

// parseAmount parses a u64 argument.
func parseAmount(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s %q", name, s), err)
	}
	return v, nil
}
