package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/roach88/feeledger/internal/store"
)

// txnState is shared by every instruction of one transaction.
type txnState struct {
	layout        *messageLayout
	logs          []string
	returnData    []byte
	returnProgram solana.PublicKey
}

func (s *txnState) log(format string, args ...any) {
	s.logs = append(s.logs, fmt.Sprintf(format, args...))
}

func (s *txnState) isSigner(key solana.PublicKey) bool {
	i := s.layout.index(key)
	return i >= 0 && s.layout.isSigner(i)
}

func (s *txnState) isWritable(key solana.PublicKey) bool {
	i := s.layout.index(key)
	return i >= 0 && s.layout.isWritable(i)
}

// InvokeContext is what a program sees while one of its instructions runs.
// All reads and writes go through the transaction's unit of work, so a
// failing instruction leaves no trace.
type InvokeContext struct {
	ctx       context.Context
	engine    *Engine
	tx        *store.Tx
	state     *txnState
	programID solana.PublicKey
	accounts  []*solana.AccountMeta
}

// Context returns the request context.
func (ic *InvokeContext) Context() context.Context {
	return ic.ctx
}

// ProgramID returns the id of the executing program.
func (ic *InvokeContext) ProgramID() solana.PublicKey {
	return ic.programID
}

// Logger returns the engine logger scoped to the executing program.
func (ic *InvokeContext) Logger() *zap.Logger {
	return ic.engine.logger.With(zap.Stringer("program_id", ic.programID))
}

// NumAccounts returns how many accounts the instruction was given.
func (ic *InvokeContext) NumAccounts() int {
	return len(ic.accounts)
}

// Account returns the i-th instruction account.
func (ic *InvokeContext) Account(i int) (*solana.AccountMeta, error) {
	if i < 0 || i >= len(ic.accounts) {
		return nil, NewRuntimeError(ErrCodeNotEnoughAccountKeys,
			"instruction needs account %d, got %d accounts", i, len(ic.accounts))
	}
	return ic.accounts[i], nil
}

// RequireAccounts fails unless the instruction was given at least n accounts.
func (ic *InvokeContext) RequireAccounts(n int) error {
	if len(ic.accounts) < n {
		return NewRuntimeError(ErrCodeNotEnoughAccountKeys,
			"instruction needs %d accounts, got %d", n, len(ic.accounts))
	}
	return nil
}

// IsSigner reports whether key signed the transaction.
func (ic *InvokeContext) IsSigner(key solana.PublicKey) bool {
	return ic.state.isSigner(key)
}

// RequireSigner fails with MissingRequiredSignature unless key signed.
func (ic *InvokeContext) RequireSigner(key solana.PublicKey) error {
	if !ic.state.isSigner(key) {
		return NewRuntimeError(ErrCodeMissingRequiredSignature, "%s must sign", key).
			WithDetail("account", key.String())
	}
	return nil
}

// MinimumBalance returns the rent-exempt minimum for space bytes.
func (ic *InvokeContext) MinimumBalance(space int) uint64 {
	return ic.engine.rent.MinimumBalance(space)
}

// Logf appends a program log line.
func (ic *InvokeContext) Logf(format string, args ...any) {
	ic.state.log("Program log: "+format, args...)
}

// SetReturnData sets the transaction's return data. The last call wins.
func (ic *InvokeContext) SetReturnData(data []byte) {
	ic.state.returnData = append([]byte(nil), data...)
	ic.state.returnProgram = ic.programID
}

// Exists reports whether an account has been created at key.
func (ic *InvokeContext) Exists(key solana.PublicKey) (bool, error) {
	_, err := ic.tx.GetAccount(ic.ctx, key)
	if errors.Is(err, store.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Load reads an account, failing with AccountNotFound if it does not exist.
func (ic *InvokeContext) Load(key solana.PublicKey) (store.Account, error) {
	acc, err := ic.tx.GetAccount(ic.ctx, key)
	if errors.Is(err, store.ErrAccountNotFound) {
		return store.Account{}, NewRuntimeError(ErrCodeAccountNotFound, "account %s not found", key).
			WithDetail("account", key.String())
	}
	return acc, err
}

// Save writes an account on behalf of the executing program.
func (ic *InvokeContext) Save(acc store.Account) error {
	return ic.write(ic.programID, acc)
}

// write enforces the account rules for a change made by program `as`:
//   - the account must be writable in the transaction
//   - only the owner may change data or owner, or debit lamports
//   - accounts holding data must stay rent exempt
func (ic *InvokeContext) write(as solana.PublicKey, acc store.Account) error {
	if !ic.state.isWritable(acc.Address) {
		return NewRuntimeError(ErrCodeReadonlyAccount, "account %s is not writable", acc.Address).
			WithDetail("account", acc.Address.String())
	}

	cur, err := ic.tx.GetAccount(ic.ctx, acc.Address)
	if errors.Is(err, store.ErrAccountNotFound) {
		cur = newSystemAccount(acc.Address)
	} else if err != nil {
		return err
	}

	if !cur.Owner.Equals(as) {
		if !cur.Owner.Equals(acc.Owner) || !bytes.Equal(cur.Data, acc.Data) {
			return NewRuntimeError(ErrCodeExternalAccountDataModified,
				"program %s modified data of %s owned by %s", as, acc.Address, cur.Owner)
		}
		if acc.Lamports < cur.Lamports {
			return NewRuntimeError(ErrCodeExternalAccountLamportSpend,
				"program %s debited %s owned by %s", as, acc.Address, cur.Owner)
		}
	}

	if len(acc.Data) > 0 {
		if need := ic.engine.rent.MinimumBalance(len(acc.Data)); acc.Lamports < need {
			return NewRuntimeError(ErrCodeInsufficientFundsForRent,
				"account %s holds %d lamports, needs %d", acc.Address, acc.Lamports, need)
		}
	}

	return ic.tx.PutAccount(ic.ctx, acc)
}

// createAccount allocates a zeroed account of space bytes owned by owner,
// funded by payer. Writes happen as the system program.
func (ic *InvokeContext) createAccount(payer, addr, owner solana.PublicKey, space, lamports uint64) error {
	if space > math.MaxInt32 {
		return NewRuntimeError(ErrCodeInvalidInstructionData, "space %d too large", space)
	}

	existing, err := ic.tx.GetAccount(ic.ctx, addr)
	switch {
	case err == nil:
		if existing.Lamports > 0 || len(existing.Data) > 0 || !existing.Owner.Equals(solana.SystemProgramID) {
			return NewRuntimeError(ErrCodeAccountAlreadyInUse, "account %s already in use", addr).
				WithDetail("account", addr.String())
		}
	case errors.Is(err, store.ErrAccountNotFound):
	default:
		return err
	}

	if need := ic.engine.rent.MinimumBalance(int(space)); space > 0 && lamports < need {
		return NewRuntimeError(ErrCodeInsufficientFundsForRent,
			"account %s needs %d lamports for %d bytes, got %d", addr, need, space, lamports)
	}

	from, err := ic.Load(payer)
	if err != nil {
		return err
	}
	if from.Lamports < lamports {
		return NewRuntimeError(ErrCodeInsufficientFunds,
			"payer %s has %d lamports, needs %d", payer, from.Lamports, lamports).
			WithDetail("account", payer.String())
	}
	from.Lamports -= lamports
	if err := ic.write(solana.SystemProgramID, from); err != nil {
		return err
	}

	return ic.write(solana.SystemProgramID, store.Account{
		Address:  addr,
		Owner:    owner,
		Lamports: lamports,
		Data:     make([]byte, space),
	})
}

// CreatePDA creates the rent-exempt account derived from seeds and the
// executing program's id, owned by the program and paid for by payer.
// The derived account must be among the instruction's accounts.
func (ic *InvokeContext) CreatePDA(payer solana.PublicKey, seeds [][]byte, space int) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, ic.programID)
	if err != nil {
		return solana.PublicKey{}, 0, NewRuntimeError(ErrCodeInvalidSeeds, "derive address: %v", err)
	}

	listed := false
	for _, meta := range ic.accounts {
		if meta.PublicKey.Equals(addr) {
			listed = true
			break
		}
	}
	if !listed {
		return solana.PublicKey{}, 0, NewRuntimeError(ErrCodeInvalidSeeds,
			"derived address %s is not an instruction account", addr)
	}
	if err := ic.RequireSigner(payer); err != nil {
		return solana.PublicKey{}, 0, err
	}

	lamports := ic.engine.rent.MinimumBalance(space)
	existing, err := ic.tx.GetAccount(ic.ctx, addr)
	switch {
	case err == nil && existing.Lamports > 0 && len(existing.Data) == 0 && existing.Owner.Equals(solana.SystemProgramID):
		err = ic.claimFunded(payer, existing, uint64(space), lamports)
	case err == nil || errors.Is(err, store.ErrAccountNotFound):
		err = ic.createAccount(payer, addr, ic.programID, uint64(space), lamports)
	}
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	return addr, bump, nil
}

// claimFunded turns a system account that already holds lamports but no
// data into the executing program's account: payer tops it up to the
// rent-exempt minimum, then it is allocated and assigned.
func (ic *InvokeContext) claimFunded(payer solana.PublicKey, acc store.Account, space, minimum uint64) error {
	if acc.Lamports < minimum {
		need := minimum - acc.Lamports
		from, err := ic.Load(payer)
		if err != nil {
			return err
		}
		if from.Lamports < need {
			return NewRuntimeError(ErrCodeInsufficientFunds,
				"payer %s has %d lamports, needs %d", payer, from.Lamports, need).
				WithDetail("account", payer.String())
		}
		from.Lamports -= need
		if err := ic.write(solana.SystemProgramID, from); err != nil {
			return err
		}
		acc.Lamports = minimum
	}

	ic.state.log("Program log: claiming pre-funded account %s", acc.Address)
	acc.Owner = ic.programID
	acc.Data = make([]byte, space)
	return ic.write(solana.SystemProgramID, acc)
}

// TokenTransfer moves amount tokens from source to destination, authorized
// by authority, as a nested call into the token program.
func (ic *InvokeContext) TokenTransfer(source, destination, authority solana.PublicKey, amount uint64) error {
	tokenID := TokenProgramID
	ic.state.log("Program %s invoke [2]", tokenID)
	ic.state.log("Program log: Instruction: Transfer")
	if err := ic.tokenTransfer(source, destination, authority, amount); err != nil {
		ic.state.log("Program %s failed: %v", tokenID, err)
		return err
	}
	ic.state.log("Program %s success", tokenID)
	return nil
}

func newSystemAccount(addr solana.PublicKey) store.Account {
	return store.Account{Address: addr, Owner: solana.SystemProgramID, Data: []byte{}}
}
