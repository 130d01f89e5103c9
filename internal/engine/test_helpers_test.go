package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feeledger/internal/store"
	"github.com/roach88/feeledger/internal/testutil"
)

const testFunding = 10_000_000_000

// testLedger bundles an engine over a temp store with a keyring.
type testLedger struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Store
	engine *Engine
	keys   *testutil.Keyring
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func setupTestLedger(t *testing.T, opts ...Option) *testLedger {
	t.Helper()
	ctx := context.Background()
	s := setupTestStore(t)
	e, err := New(ctx, s, opts...)
	require.NoError(t, err)
	return &testLedger{t: t, ctx: ctx, store: s, engine: e, keys: testutil.NewKeyring()}
}

func (l *testLedger) fund(name string, lamports uint64) solana.PublicKey {
	l.t.Helper()
	pub := l.keys.PublicKey(name)
	require.NoError(l.t, l.engine.Airdrop(l.ctx, pub, lamports))
	return pub
}

// buildTx builds a transaction paid by signers[0] and signed by all signers.
func (l *testLedger) buildTx(signers []string, instrs ...solana.Instruction) *solana.Transaction {
	l.t.Helper()
	tx, err := solana.NewTransaction(instrs, l.engine.LatestBlockhash(),
		solana.TransactionPayer(l.keys.PublicKey(signers[0])))
	require.NoError(l.t, err)
	_, err = tx.Sign(l.keys.Signer(signers...))
	require.NoError(l.t, err)
	return tx
}

func (l *testLedger) send(signers []string, instrs ...solana.Instruction) (*Receipt, error) {
	l.t.Helper()
	return l.engine.SendTransaction(l.ctx, l.buildTx(signers, instrs...))
}

func (l *testLedger) mustSend(signers []string, instrs ...solana.Instruction) *Receipt {
	l.t.Helper()
	receipt, err := l.send(signers, instrs...)
	require.NoError(l.t, err)
	return receipt
}

func (l *testLedger) createMint(payer, mint, authority string, decimals uint8) solana.PublicKey {
	l.t.Helper()
	l.mustSend([]string{payer, mint}, NewCreateMintInstructions(
		l.engine.Rent(), l.keys.PublicKey(payer), l.keys.PublicKey(mint), l.keys.PublicKey(authority), decimals)...)
	return l.keys.PublicKey(mint)
}

func (l *testLedger) createTokenAccount(payer, account string, mint solana.PublicKey, owner string) solana.PublicKey {
	l.t.Helper()
	l.mustSend([]string{payer, account}, NewCreateTokenAccountInstructions(
		l.engine.Rent(), l.keys.PublicKey(payer), l.keys.PublicKey(account), mint, l.keys.PublicKey(owner))...)
	return l.keys.PublicKey(account)
}

func (l *testLedger) mintTo(authority string, mint, dest solana.PublicKey, amount uint64) {
	l.t.Helper()
	l.mustSend([]string{authority}, NewMintToInstruction(amount, mint, dest, l.keys.PublicKey(authority)))
}

func (l *testLedger) lamports(addr solana.PublicKey) uint64 {
	l.t.Helper()
	acc, err := l.engine.GetAccount(l.ctx, addr)
	require.NoError(l.t, err)
	return acc.Lamports
}

func (l *testLedger) tokenBalance(addr solana.PublicKey) uint64 {
	l.t.Helper()
	acc, err := l.engine.GetAccount(l.ctx, addr)
	require.NoError(l.t, err)
	state, err := DecodeTokenAccount(acc.Data)
	require.NoError(l.t, err)
	return state.Amount
}

// scriptedProgram runs a test-supplied function as its instruction handler.
type scriptedProgram struct {
	id  solana.PublicKey
	run func(ic *InvokeContext, data []byte) error
}

func (p *scriptedProgram) ID() solana.PublicKey { return p.id }
func (p *scriptedProgram) Name() string         { return "scripted" }
func (p *scriptedProgram) Execute(ic *InvokeContext, data []byte) error {
	return p.run(ic, data)
}

func (l *testLedger) register(name string, run func(ic *InvokeContext, data []byte) error) solana.PublicKey {
	l.t.Helper()
	id := l.keys.PublicKey(name)
	require.NoError(l.t, l.engine.Register(&scriptedProgram{id: id, run: run}))
	return id
}
