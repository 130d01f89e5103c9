package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/roach88/feeledger/internal/ir"
	"github.com/roach88/feeledger/internal/store"
)

// MaxRecentBlockhashes is how many slots a blockhash stays valid for.
const MaxRecentBlockhashes = 150

// Program is an on-ledger program the engine can dispatch instructions to.
type Program interface {
	ID() solana.PublicKey
	Name() string
	Execute(ic *InvokeContext, data []byte) error
}

// Describer is implemented by programs that can decode their instruction
// data for the transaction log.
type Describer interface {
	Describe(data []byte) (name string, args ir.IRObject, err error)
}

// Receipt describes a transaction that was executed, whether it committed
// or rolled back.
type Receipt struct {
	Signature  solana.Signature
	Slot       int64
	Logs       []string
	ReturnData []byte

	// Err is the failure that rolled the transaction back, nil on success.
	Err error
}

// Engine is the in-process ledger runtime.
//
// SendTransaction is safe from any goroutine. Submissions are serialized by
// an engine-wide lock: one transaction owns the slot counter and the store
// from its blockhash check until its log entry is written.
type Engine struct {
	mu       sync.Mutex
	store    *store.Store
	clock    *Clock
	programs map[solana.PublicKey]Program
	rent     Rent
	logger   *zap.Logger
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithLogger sets the engine logger. Default: zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRent overrides the rent parameters. Default: DefaultRent.
func WithRent(rent Rent) Option {
	return func(e *Engine) {
		e.rent = rent
	}
}

// New creates an Engine over s with the system and token programs
// registered. The slot clock resumes after the last slot in the log.
func New(ctx context.Context, s *store.Store, opts ...Option) (*Engine, error) {
	last, err := s.LastSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	e := &Engine{
		store:    s,
		clock:    NewClockAt(last),
		programs: make(map[solana.PublicKey]Program),
		rent:     DefaultRent,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, p := range []Program{NewSystemProgram(), NewTokenProgram()} {
		if err := e.Register(p); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Register adds a program. Registering the same id twice is an error.
func (e *Engine) Register(p Program) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.programs[p.ID()]; ok {
		return fmt.Errorf("program %s already registered", p.ID())
	}
	e.programs[p.ID()] = p
	e.logger.Debug("program registered",
		zap.String("program", p.Name()),
		zap.Stringer("program_id", p.ID()))
	return nil
}

// Rent returns the engine's rent parameters.
func (e *Engine) Rent() Rent {
	return e.rent
}

// Slot returns the current slot.
func (e *Engine) Slot() int64 {
	return e.clock.Current()
}

// LatestBlockhash returns the blockhash of the current slot.
func (e *Engine) LatestBlockhash() solana.Hash {
	return solana.Hash(ir.Blockhash(e.store.GenesisID(), e.clock.Current()))
}

// GetAccount reads a committed account.
func (e *Engine) GetAccount(ctx context.Context, addr solana.PublicKey) (store.Account, error) {
	return e.store.GetAccount(ctx, addr)
}

// Airdrop credits lamports to addr, creating a system account if needed.
func (e *Engine) Airdrop(ctx context.Context, addr solana.PublicKey, lamports uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		acc, err := tx.GetAccount(ctx, addr)
		if errors.Is(err, store.ErrAccountNotFound) {
			acc = newSystemAccount(addr)
		} else if err != nil {
			return err
		}
		if lamports > math.MaxInt64 || acc.Lamports > math.MaxInt64-lamports {
			return NewRuntimeError(ErrCodeArithmeticOverflow, "airdrop of %d lamports overflows %s", lamports, addr)
		}
		acc.Lamports += lamports
		return tx.PutAccount(ctx, acc)
	})
	if err != nil {
		return fmt.Errorf("airdrop: %w", err)
	}

	e.logger.Debug("airdrop",
		zap.Stringer("account", addr),
		zap.Uint64("lamports", lamports))
	return nil
}

// SendTransaction verifies, executes and records a signed transaction.
//
// Rejected transactions (malformed, bad signature, unknown blockhash,
// duplicate) return a nil Receipt and are not recorded. Executed
// transactions always return a Receipt; if any instruction fails, every
// account change is rolled back, the failure is recorded and returned both
// as the error and as Receipt.Err.
func (e *Engine) SendTransaction(ctx context.Context, tx *solana.Transaction) (*Receipt, error) {
	layout, err := sanitize(tx)
	if err != nil {
		return nil, err
	}

	msgBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, NewRuntimeError(ErrCodeSanitizeFailure, "encode message: %v", err)
	}
	for i, sig := range tx.Signatures {
		if !sig.Verify(layout.keys[i], msgBytes) {
			return nil, NewRuntimeError(ErrCodeSignatureFailure, "invalid signature for %s", layout.keys[i]).
				WithDetail("signer", layout.keys[i].String())
		}
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, NewRuntimeError(ErrCodeSanitizeFailure, "encode transaction: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	signature := tx.Signatures[0]
	seen, err := e.store.HasTransaction(ctx, signature.String())
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	if seen {
		return nil, NewRuntimeError(ErrCodeAlreadyProcessed, "transaction %s already processed", signature)
	}
	if !e.isRecentBlockhash(tx.Message.RecentBlockhash) {
		return nil, NewRuntimeError(ErrCodeBlockhashNotFound, "blockhash %s not found", tx.Message.RecentBlockhash)
	}

	slot := e.clock.Next()
	rec := ir.TransactionRecord{
		Signature:    signature.String(),
		Slot:         slot,
		FeePayer:     layout.keys[0].String(),
		Instructions: e.describe(tx.Message, layout),
		Raw:          raw,
	}
	state := &txnState{layout: layout}

	execErr := e.store.WithTx(ctx, func(stx *store.Tx) error {
		for i, ci := range tx.Message.Instructions {
			if err := e.executeInstruction(ctx, stx, state, ci); err != nil {
				return &TransactionError{Index: i, Err: err}
			}
		}
		rec.Status = ir.StatusOK
		rec.Logs = state.logs
		rec.ReturnData = state.returnData
		return stx.InsertTransaction(ctx, rec)
	})

	receipt := &Receipt{
		Signature: signature,
		Slot:      slot,
		Logs:      state.logs,
	}
	if execErr == nil {
		receipt.ReturnData = state.returnData
		e.logger.Info("transaction committed",
			zap.Stringer("signature", signature),
			zap.Int64("slot", slot),
			zap.Int("instructions", len(tx.Message.Instructions)))
		return receipt, nil
	}

	var txErr *TransactionError
	if !errors.As(execErr, &txErr) {
		return nil, fmt.Errorf("send transaction: %w", execErr)
	}

	rec.Status = ir.StatusFailed
	rec.ErrorTag = ErrorTag(execErr)
	rec.ErrorMessage = txErr.Err.Error()
	rec.Logs = state.logs
	rec.ReturnData = nil
	if err := e.store.InsertTransaction(ctx, rec); err != nil {
		return nil, fmt.Errorf("record failed transaction: %w", err)
	}

	e.logger.Info("transaction failed",
		zap.Stringer("signature", signature),
		zap.Int64("slot", slot),
		zap.Int("instruction", txErr.Index),
		zap.String("error_tag", rec.ErrorTag),
		zap.Error(txErr.Err))

	receipt.Err = execErr
	return receipt, execErr
}

// isRecentBlockhash reports whether h is the blockhash of one of the last
// MaxRecentBlockhashes slots.
func (e *Engine) isRecentBlockhash(h solana.Hash) bool {
	genesis := e.store.GenesisID()
	current := e.clock.Current()
	oldest := current - MaxRecentBlockhashes + 1
	if oldest < 0 {
		oldest = 0
	}
	for slot := current; slot >= oldest; slot-- {
		if solana.Hash(ir.Blockhash(genesis, slot)) == h {
			return true
		}
	}
	return false
}

func (e *Engine) executeInstruction(ctx context.Context, stx *store.Tx, state *txnState, ci solana.CompiledInstruction) error {
	programID := state.layout.keys[ci.ProgramIDIndex]
	program, ok := e.programs[programID]
	if !ok {
		return NewRuntimeError(ErrCodeUnknownProgram, "program %s is not registered", programID)
	}

	metas := make([]*solana.AccountMeta, len(ci.Accounts))
	for j, idx := range ci.Accounts {
		metas[j] = &solana.AccountMeta{
			PublicKey:  state.layout.keys[idx],
			IsSigner:   state.layout.isSigner(int(idx)),
			IsWritable: state.layout.isWritable(int(idx)),
		}
	}

	ic := &InvokeContext{
		ctx:       ctx,
		engine:    e,
		tx:        stx,
		state:     state,
		programID: programID,
		accounts:  metas,
	}

	state.log("Program %s invoke [1]", programID)
	if err := program.Execute(ic, ci.Data); err != nil {
		state.log("Program %s failed: %v", programID, err)
		return err
	}
	if state.returnData != nil && state.returnProgram == programID {
		state.log("Program return: %s %s", programID, base64.StdEncoding.EncodeToString(state.returnData))
	}
	state.log("Program %s success", programID)
	return nil
}

// describe decodes each instruction for the log. Undecodable instructions
// are recorded as "unknown" rather than rejected; execution reports the
// actual failure.
func (e *Engine) describe(msg solana.Message, layout *messageLayout) []ir.InstructionRecord {
	out := make([]ir.InstructionRecord, 0, len(msg.Instructions))
	for _, ci := range msg.Instructions {
		programID := layout.keys[ci.ProgramIDIndex]
		accounts := make([]string, len(ci.Accounts))
		for j, idx := range ci.Accounts {
			accounts[j] = layout.keys[idx].String()
		}

		rec := ir.InstructionRecord{
			Program:  programID.String(),
			Name:     "unknown",
			Accounts: accounts,
			Args:     ir.IRObject{},
		}
		if d, ok := e.programs[programID].(Describer); ok {
			if name, args, err := d.Describe(ci.Data); err == nil {
				rec.Name = name
				if args != nil {
					rec.Args = args
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

// messageLayout holds the signer and writable flags the header assigns to
// each account key.
type messageLayout struct {
	keys                []solana.PublicKey
	numSigners          int
	numReadonlySigned   int
	numReadonlyUnsigned int
}

func (l *messageLayout) isSigner(i int) bool {
	return i < l.numSigners
}

func (l *messageLayout) isWritable(i int) bool {
	if i < l.numSigners {
		return i < l.numSigners-l.numReadonlySigned
	}
	return i < len(l.keys)-l.numReadonlyUnsigned
}

func (l *messageLayout) index(key solana.PublicKey) int {
	for i, k := range l.keys {
		if k.Equals(key) {
			return i
		}
	}
	return -1
}

// sanitize checks the structural rules a transaction must satisfy before
// its signatures are even looked at.
func sanitize(tx *solana.Transaction) (*messageLayout, error) {
	if tx == nil {
		return nil, NewRuntimeError(ErrCodeSanitizeFailure, "nil transaction")
	}
	msg := tx.Message
	if msg.IsVersioned() {
		return nil, NewRuntimeError(ErrCodeSanitizeFailure, "versioned messages are not supported")
	}

	h := msg.Header
	layout := &messageLayout{
		keys:                msg.AccountKeys,
		numSigners:          int(h.NumRequiredSignatures),
		numReadonlySigned:   int(h.NumReadonlySignedAccounts),
		numReadonlyUnsigned: int(h.NumReadonlyUnsignedAccounts),
	}

	switch {
	case layout.numSigners == 0:
		return nil, NewRuntimeError(ErrCodeSanitizeFailure, "transaction requires at least one signature")
	case layout.numReadonlySigned >= layout.numSigners:
		return nil, NewRuntimeError(ErrCodeSanitizeFailure, "fee payer must be writable")
	case layout.numSigners+layout.numReadonlyUnsigned > len(layout.keys):
		return nil, NewRuntimeError(ErrCodeSanitizeFailure, "header counts exceed %d account keys", len(layout.keys))
	case len(tx.Signatures) != layout.numSigners:
		return nil, NewRuntimeError(ErrCodeSanitizeFailure, "expected %d signatures, got %d", layout.numSigners, len(tx.Signatures))
	case len(msg.Instructions) == 0:
		return nil, NewRuntimeError(ErrCodeSanitizeFailure, "transaction has no instructions")
	}

	seen := make(map[solana.PublicKey]struct{}, len(layout.keys))
	for _, k := range layout.keys {
		if _, dup := seen[k]; dup {
			return nil, NewRuntimeError(ErrCodeSanitizeFailure, "account %s loaded twice", k)
		}
		seen[k] = struct{}{}
	}

	for i, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(layout.keys) {
			return nil, NewRuntimeError(ErrCodeSanitizeFailure, "instruction %d: program index %d out of range", i, ci.ProgramIDIndex)
		}
		if ci.ProgramIDIndex == 0 {
			return nil, NewRuntimeError(ErrCodeSanitizeFailure, "instruction %d: fee payer cannot be a program", i)
		}
		for _, idx := range ci.Accounts {
			if int(idx) >= len(layout.keys) {
				return nil, NewRuntimeError(ErrCodeSanitizeFailure, "instruction %d: account index %d out of range", i, idx)
			}
		}
	}
	return layout, nil
}
