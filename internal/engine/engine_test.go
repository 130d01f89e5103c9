package engine

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/feeledger/internal/ir"
	"github.com/roach88/feeledger/internal/store"
)

func TestEngine_New(t *testing.T) {
	l := setupTestLedger(t)

	assert.Equal(t, int64(0), l.engine.Slot())
	assert.Equal(t, DefaultRent, l.engine.Rent())
	assert.Equal(t, solana.Hash(ir.Blockhash(l.store.GenesisID(), 0)), l.engine.LatestBlockhash())
}

func TestEngine_Register_Duplicate(t *testing.T) {
	l := setupTestLedger(t)

	err := l.engine.Register(NewTokenProgram())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestEngine_Airdrop(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", 500)
	require.NoError(t, l.engine.Airdrop(l.ctx, alice, 250))

	acc, err := l.engine.GetAccount(l.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), acc.Lamports)
	assert.Equal(t, solana.SystemProgramID, acc.Owner)
	assert.Empty(t, acc.Data)
}

func TestEngine_Airdrop_Overflow(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", 1<<62)

	err := l.engine.Airdrop(l.ctx, alice, 1<<62)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeArithmeticOverflow))
	assert.Equal(t, uint64(1<<62), l.lamports(alice))
}

func TestSendTransaction_CommitsAndRecords(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	bob := l.keys.PublicKey("bob")

	receipt := l.mustSend([]string{"alice"}, system.NewTransferInstruction(1_000, alice, bob).Build())

	assert.Equal(t, int64(1), receipt.Slot)
	assert.NoError(t, receipt.Err)
	assert.Equal(t, []string{
		"Program 11111111111111111111111111111111 invoke [1]",
		"Program 11111111111111111111111111111111 success",
	}, receipt.Logs)
	assert.Equal(t, uint64(testFunding-1_000), l.lamports(alice))
	assert.Equal(t, uint64(1_000), l.lamports(bob))
	assert.Equal(t, int64(1), l.engine.Slot())

	rec, err := l.store.GetTransaction(l.ctx, receipt.Signature.String())
	require.NoError(t, err)
	assert.Equal(t, ir.StatusOK, rec.Status)
	assert.Equal(t, alice.String(), rec.FeePayer)
	require.Len(t, rec.Instructions, 1)
	assert.Equal(t, "transfer", rec.Instructions[0].Name)
	assert.Equal(t, []string{alice.String(), bob.String()}, rec.Instructions[0].Accounts)
	assert.NotEmpty(t, rec.Raw)
}

func TestSendTransaction_FailureRollsBackAllInstructions(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	bob := l.keys.PublicKey("bob")
	boom := errors.New("boom")
	failing := l.register("failing-program", func(ic *InvokeContext, data []byte) error {
		return boom
	})

	receipt, err := l.send([]string{"alice"},
		system.NewTransferInstruction(1_000, alice, bob).Build(),
		solana.NewInstruction(failing, solana.AccountMetaSlice{}, nil),
	)
	require.Error(t, err)
	require.NotNil(t, receipt)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, err, receipt.Err)

	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, 1, txErr.Index)

	assert.Equal(t, uint64(testFunding), l.lamports(alice))
	_, err = l.engine.GetAccount(l.ctx, bob)
	assert.ErrorIs(t, err, store.ErrAccountNotFound)

	rec, err := l.store.GetTransaction(l.ctx, receipt.Signature.String())
	require.NoError(t, err)
	assert.Equal(t, ir.StatusFailed, rec.Status)
	assert.Equal(t, ErrorTagInternal, rec.ErrorTag)
	assert.Equal(t, "boom", rec.ErrorMessage)
	assert.Contains(t, rec.Logs, "Program "+failing.String()+" failed: boom")
	assert.Equal(t, int64(1), rec.Slot)
}

func TestSendTransaction_DuplicateRejected(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	tx := l.buildTx([]string{"alice"}, system.NewTransferInstruction(5, alice, l.keys.PublicKey("bob")).Build())

	_, err := l.engine.SendTransaction(l.ctx, tx)
	require.NoError(t, err)

	receipt, err := l.engine.SendTransaction(l.ctx, tx)
	assert.Nil(t, receipt)
	assert.True(t, IsRuntimeError(err, ErrCodeAlreadyProcessed))
	assert.Equal(t, int64(1), l.engine.Slot())
}

func TestSendTransaction_BlockhashWindow(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	bob := l.keys.PublicKey("bob")

	first := l.buildTx([]string{"alice"}, system.NewTransferInstruction(1, alice, bob).Build())
	second := l.buildTx([]string{"alice"}, system.NewTransferInstruction(2, alice, bob).Build())

	// Slot 0's hash is still the oldest valid one at slot 149.
	l.engine.clock = NewClockAt(MaxRecentBlockhashes - 1)
	_, err := l.engine.SendTransaction(l.ctx, first)
	require.NoError(t, err)

	receipt, err := l.engine.SendTransaction(l.ctx, second)
	assert.Nil(t, receipt)
	assert.True(t, IsRuntimeError(err, ErrCodeBlockhashNotFound))
	assert.Equal(t, int64(MaxRecentBlockhashes), l.engine.Slot())
}

func TestSendTransaction_UnknownBlockhash(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, alice, l.keys.PublicKey("bob")).Build()},
		solana.Hash{1, 2, 3},
		solana.TransactionPayer(alice))
	require.NoError(t, err)
	_, err = tx.Sign(l.keys.Signer("alice"))
	require.NoError(t, err)

	_, err = l.engine.SendTransaction(l.ctx, tx)
	assert.True(t, IsRuntimeError(err, ErrCodeBlockhashNotFound))
}

func TestSendTransaction_BadSignatureNotRecorded(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	tx := l.buildTx([]string{"alice"}, system.NewTransferInstruction(1, alice, l.keys.PublicKey("bob")).Build())
	tx.Signatures[0][0] ^= 0xff

	receipt, err := l.engine.SendTransaction(l.ctx, tx)
	assert.Nil(t, receipt)
	assert.True(t, IsRuntimeError(err, ErrCodeSignatureFailure))
	assert.Equal(t, "SignatureFailure", ErrorTag(err))

	recs, err := l.store.ReadTransactions(l.ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, int64(0), l.engine.Slot())
}

func TestSendTransaction_Sanitize(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tx *solana.Transaction)
	}{
		{"nil signatures", func(tx *solana.Transaction) { tx.Signatures = nil }},
		{"no instructions", func(tx *solana.Transaction) { tx.Message.Instructions = nil }},
		{"duplicate key", func(tx *solana.Transaction) {
			tx.Message.AccountKeys = append(tx.Message.AccountKeys, tx.Message.AccountKeys[0])
		}},
		{"fee payer readonly", func(tx *solana.Transaction) { tx.Message.Header.NumReadonlySignedAccounts = 1 }},
		{"program index zero", func(tx *solana.Transaction) { tx.Message.Instructions[0].ProgramIDIndex = 0 }},
		{"account index out of range", func(tx *solana.Transaction) {
			tx.Message.Instructions[0].Accounts = []uint16{99}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := setupTestLedger(t)
			alice := l.fund("alice", testFunding)
			tx := l.buildTx([]string{"alice"}, system.NewTransferInstruction(1, alice, l.keys.PublicKey("bob")).Build())
			tt.mutate(tx)

			receipt, err := l.engine.SendTransaction(l.ctx, tx)
			assert.Nil(t, receipt)
			assert.True(t, IsRuntimeError(err, ErrCodeSanitizeFailure), "got %v", err)
		})
	}
}

func TestSendTransaction_UnknownProgram(t *testing.T) {
	l := setupTestLedger(t)
	l.fund("alice", testFunding)

	_, err := l.send([]string{"alice"},
		solana.NewInstruction(l.keys.PublicKey("nowhere"), solana.AccountMetaSlice{}, []byte{1}))
	assert.True(t, IsRuntimeError(err, ErrCodeUnknownProgram))
	assert.Equal(t, "UnknownProgram", ErrorTag(err))
}

func TestSendTransaction_ReadonlyAccount(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	bob := l.fund("bob", 1)

	data, err := system.NewTransferInstruction(10, alice, bob).Build().Data()
	require.NoError(t, err)
	inst := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(alice).WRITE().SIGNER(),
		solana.Meta(bob),
	}, data)

	receipt, err := l.send([]string{"alice"}, inst)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err, ErrCodeReadonlyAccount))

	rec, err := l.store.GetTransaction(l.ctx, receipt.Signature.String())
	require.NoError(t, err)
	assert.Equal(t, "ReadonlyAccount", rec.ErrorTag)
	assert.Equal(t, uint64(testFunding), l.lamports(alice))
	assert.Equal(t, uint64(1), l.lamports(bob))
}

func TestSendTransaction_ForeignAccountRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(acc *store.Account)
		code   RuntimeErrorCode
	}{
		{"data write", func(acc *store.Account) { acc.Data = []byte{1} }, ErrCodeExternalAccountDataModified},
		{"owner change", func(acc *store.Account) { acc.Owner = solana.TokenProgramID }, ErrCodeExternalAccountDataModified},
		{"debit", func(acc *store.Account) { acc.Lamports-- }, ErrCodeExternalAccountLamportSpend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := setupTestLedger(t)
			l.fund("alice", testFunding)
			victim := l.fund("victim", 5_000)
			prog := l.register("meddler", func(ic *InvokeContext, data []byte) error {
				acc, err := ic.Load(victim)
				if err != nil {
					return err
				}
				tt.mutate(&acc)
				return ic.Save(acc)
			})

			_, err := l.send([]string{"alice"},
				solana.NewInstruction(prog, solana.AccountMetaSlice{solana.Meta(victim).WRITE()}, nil))
			assert.True(t, IsRuntimeError(err, tt.code), "got %v", err)
			assert.Equal(t, uint64(5_000), l.lamports(victim))
		})
	}
}

func TestSendTransaction_CreditForeignAccountAllowed(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	mint := l.createMint("alice", "mint", "alice", 6)
	before := l.lamports(mint)

	l.mustSend([]string{"alice"}, system.NewTransferInstruction(7, alice, mint).Build())
	assert.Equal(t, before+7, l.lamports(mint))
}

func TestSendTransaction_ReturnData(t *testing.T) {
	l := setupTestLedger(t)
	l.fund("alice", testFunding)
	prog := l.register("echo", func(ic *InvokeContext, data []byte) error {
		ic.Logf("echo %d bytes", len(data))
		ic.SetReturnData(data)
		return nil
	})

	receipt := l.mustSend([]string{"alice"},
		solana.NewInstruction(prog, solana.AccountMetaSlice{}, []byte("hello")))

	assert.Equal(t, []byte("hello"), receipt.ReturnData)
	assert.Equal(t, []string{
		"Program " + prog.String() + " invoke [1]",
		"Program log: echo 5 bytes",
		"Program return: " + prog.String() + " " + base64.StdEncoding.EncodeToString([]byte("hello")),
		"Program " + prog.String() + " success",
	}, receipt.Logs)

	rec, err := l.store.GetTransaction(l.ctx, receipt.Signature.String())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), rec.ReturnData)
	assert.Equal(t, "unknown", rec.Instructions[0].Name)
}

func TestSendTransaction_MissingSignature(t *testing.T) {
	l := setupTestLedger(t)
	l.fund("alice", testFunding)
	bob := l.keys.PublicKey("bob")
	prog := l.register("gate", func(ic *InvokeContext, data []byte) error {
		return ic.RequireSigner(bob)
	})

	_, err := l.send([]string{"alice"},
		solana.NewInstruction(prog, solana.AccountMetaSlice{solana.Meta(bob)}, nil))
	assert.True(t, IsRuntimeError(err, ErrCodeMissingRequiredSignature))
}

func TestCreatePDA(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	progID := l.keys.PublicKey("vault-program")
	seeds := [][]byte{[]byte("vault")}
	want, wantBump, err := solana.FindProgramAddress(seeds, progID)
	require.NoError(t, err)

	l.register("vault-program", func(ic *InvokeContext, data []byte) error {
		addr, bump, err := ic.CreatePDA(alice, seeds, 8)
		if err != nil {
			return err
		}
		acc, err := ic.Load(addr)
		if err != nil {
			return err
		}
		acc.Data[0] = bump
		return ic.Save(acc)
	})

	inst := solana.NewInstruction(progID, solana.AccountMetaSlice{
		solana.Meta(alice).WRITE().SIGNER(),
		solana.Meta(want).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}, nil)
	l.mustSend([]string{"alice"}, inst)

	acc, err := l.engine.GetAccount(l.ctx, want)
	require.NoError(t, err)
	assert.Equal(t, progID, acc.Owner)
	assert.Equal(t, l.engine.Rent().MinimumBalance(8), acc.Lamports)
	assert.Equal(t, wantBump, acc.Data[0])
	assert.Equal(t, uint64(testFunding)-acc.Lamports, l.lamports(alice))

	// The same address cannot be created twice.
	_, err = l.send([]string{"alice"}, inst, system.NewTransferInstruction(1, alice, l.keys.PublicKey("bob")).Build())
	assert.True(t, IsRuntimeError(err, ErrCodeAccountAlreadyInUse), "got %v", err)
}

func TestCreatePDA_AddressNotListed(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	prog := l.register("vault-program", func(ic *InvokeContext, data []byte) error {
		_, _, err := ic.CreatePDA(alice, [][]byte{[]byte("vault")}, 8)
		return err
	})

	_, err := l.send([]string{"alice"},
		solana.NewInstruction(prog, solana.AccountMetaSlice{solana.Meta(alice).WRITE().SIGNER()}, nil))
	assert.True(t, IsRuntimeError(err, ErrCodeInvalidSeeds))
}

func TestEngine_ResumesSlotAfterReopen(t *testing.T) {
	l := setupTestLedger(t)
	alice := l.fund("alice", testFunding)
	l.mustSend([]string{"alice"}, system.NewTransferInstruction(1, alice, l.keys.PublicKey("bob")).Build())
	l.mustSend([]string{"alice"}, system.NewTransferInstruction(2, alice, l.keys.PublicKey("bob")).Build())

	reopened, err := New(l.ctx, l.store)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reopened.Slot())
	assert.Equal(t, l.engine.LatestBlockhash(), reopened.LatestBlockhash())
}

func TestEngine_LogsOutcomes(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := setupTestLedger(t, WithLogger(zap.New(core)))
	alice := l.fund("alice", testFunding)
	bob := l.keys.PublicKey("bob")

	l.mustSend([]string{"alice"}, system.NewTransferInstruction(1, alice, bob).Build())
	_, err := l.send([]string{"alice"}, system.NewTransferInstruction(testFunding*2, alice, bob).Build())
	require.Error(t, err)

	committed := logs.FilterMessage("transaction committed").All()
	require.Len(t, committed, 1)
	assert.Equal(t, int64(1), committed[0].ContextMap()["slot"])

	failed := logs.FilterMessage("transaction failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "InsufficientFunds", failed[0].ContextMap()["error_tag"])
}

func TestErrorTag(t *testing.T) {
	assert.Equal(t, "", ErrorTag(nil))
	assert.Equal(t, ErrorTagInternal, ErrorTag(errors.New("plain")))

	err := &TransactionError{Index: 2, Err: NewRuntimeError(ErrCodeOwnerMismatch, "nope")}
	assert.Equal(t, "OwnerMismatch", ErrorTag(err))
	assert.Equal(t, "instruction 2: OwnerMismatch: nope", err.Error())
}

func TestRuntimeError_WithDetail(t *testing.T) {
	err := NewRuntimeError(ErrCodeInsufficientFunds, "short by %d", 3).WithDetail("account", "abc")
	assert.Equal(t, "InsufficientFunds: short by 3", err.Error())
	assert.Equal(t, map[string]string{"account": "abc"}, err.Details)
}
