package program

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feeledger/internal/engine"
	"github.com/roach88/feeledger/internal/store"
	"github.com/roach88/feeledger/internal/testutil"
)

const lamportsPerSOL = 1_000_000_000

// testEnv is a ledger with the program registered, one mint and the token
// accounts used across the tests. The sender starts with 10000 tokens.
type testEnv struct {
	t       *testing.T
	ctx     context.Context
	store   *store.Store
	engine  *engine.Engine
	program *Program
	keys    *testutil.Keyring

	mint          solana.PublicKey
	feeVault      solana.PublicKey
	senderToken   solana.PublicKey
	receiverToken solana.PublicKey
}

func setupTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e, err := engine.New(ctx, s)
	require.NoError(t, err)
	p := New(opts...)
	require.NoError(t, e.Register(p))

	env := &testEnv{t: t, ctx: ctx, store: s, engine: e, program: p, keys: testutil.NewKeyring()}
	for _, name := range []string{"admin", "sender", "receiver", "intruder"} {
		require.NoError(t, e.Airdrop(ctx, env.keys.PublicKey(name), 2*lamportsPerSOL))
	}

	env.mint = env.createMint("usdc")
	env.feeVault = env.createTokenAccount("fee-vault", env.mint, "admin")
	env.senderToken = env.createTokenAccount("sender-usdc", env.mint, "sender")
	env.receiverToken = env.createTokenAccount("receiver-usdc", env.mint, "receiver")
	env.mustSend([]string{"admin"},
		engine.NewMintToInstruction(10_000, env.mint, env.senderToken, env.keys.PublicKey("admin")))
	return env
}

func (env *testEnv) send(signers []string, instrs ...solana.Instruction) (*engine.Receipt, error) {
	env.t.Helper()
	tx, err := solana.NewTransaction(instrs, env.engine.LatestBlockhash(),
		solana.TransactionPayer(env.keys.PublicKey(signers[0])))
	require.NoError(env.t, err)
	_, err = tx.Sign(env.keys.Signer(signers...))
	require.NoError(env.t, err)
	return env.engine.SendTransaction(env.ctx, tx)
}

func (env *testEnv) mustSend(signers []string, instrs ...solana.Instruction) *engine.Receipt {
	env.t.Helper()
	receipt, err := env.send(signers, instrs...)
	require.NoError(env.t, err)
	return receipt
}

func (env *testEnv) createMint(name string) solana.PublicKey {
	env.t.Helper()
	mint := env.keys.PublicKey(name)
	env.mustSend([]string{"admin", name}, engine.NewCreateMintInstructions(
		env.engine.Rent(), env.keys.PublicKey("admin"), mint, env.keys.PublicKey("admin"), 0)...)
	return mint
}

func (env *testEnv) createTokenAccount(name string, mint solana.PublicKey, owner string) solana.PublicKey {
	env.t.Helper()
	account := env.keys.PublicKey(name)
	env.mustSend([]string{"admin", name}, engine.NewCreateTokenAccountInstructions(
		env.engine.Rent(), env.keys.PublicKey("admin"), account, mint, env.keys.PublicKey(owner))...)
	return account
}

func (env *testEnv) initialize(authority string, feeDestination solana.PublicKey) (*engine.Receipt, error) {
	env.t.Helper()
	inst, err := NewInitializeInstruction(env.program.ID(), env.keys.PublicKey(authority), feeDestination)
	require.NoError(env.t, err)
	return env.send([]string{authority}, inst)
}

func (env *testEnv) mustInitialize() {
	env.t.Helper()
	_, err := env.initialize("admin", env.feeVault)
	require.NoError(env.t, err)
}

func (env *testEnv) update(admin, newAdmin string, feeDestination solana.PublicKey, bps uint64) (*engine.Receipt, error) {
	env.t.Helper()
	inst, err := NewUpdateInstruction(env.program.ID(), env.keys.PublicKey(admin), feeDestination,
		env.keys.PublicKey(newAdmin), bps)
	require.NoError(env.t, err)
	return env.send([]string{admin}, inst)
}

func (env *testEnv) pay(sender string, senderToken solana.PublicKey, amount uint64) (*engine.Receipt, error) {
	env.t.Helper()
	inst, err := NewPaymentInstruction(env.program.ID(), env.feeVault, senderToken, env.receiverToken,
		env.keys.PublicKey(sender), amount)
	require.NoError(env.t, err)
	return env.send([]string{sender}, inst)
}

func (env *testEnv) config() *ProgramConfig {
	env.t.Helper()
	cfg, err := FetchConfig(env.ctx, env.engine, env.program.ID())
	require.NoError(env.t, err)
	return cfg
}

func (env *testEnv) balance(account solana.PublicKey) uint64 {
	env.t.Helper()
	acc, err := env.engine.GetAccount(env.ctx, account)
	require.NoError(env.t, err)
	state, err := engine.DecodeTokenAccount(acc.Data)
	require.NoError(env.t, err)
	return state.Amount
}
