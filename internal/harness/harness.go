package harness

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/roach88/feeledger/internal/engine"
	"github.com/roach88/feeledger/internal/ir"
	"github.com/roach88/feeledger/internal/program"
	"github.com/roach88/feeledger/internal/store"
	"github.com/roach88/feeledger/internal/testutil"
)

// ConfigName is the key name scenarios use for the program config account.
const ConfigName = "config"

// Harness is the test execution engine for one scenario.
// It owns a fresh ledger with the program deployed under its default id.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	program *program.Program
	keys    *testutil.Keyring
	config  solana.PublicKey
	logger  *zap.Logger
}

type options struct {
	logger *zap.Logger
	dir    string
}

// Option configures Run.
type Option func(*options)

// WithLogger sets the logger for the harness and the engine.
// Default: no logging.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTempDir sets the parent directory of the scenario database.
// Default: os.TempDir().
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh database that is removed afterwards.
// Keys are derived from their names, so runs are reproducible.
//
// Execution flow:
//  1. Create a fresh ledger and deploy the program
//  2. Execute setup steps (any failure aborts the run)
//  3. Execute flow steps, checking expect clauses
//  4. Evaluate assertions
//
// The returned error reports a broken scenario or ledger; expectation and
// assertion failures are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	dir, err := os.MkdirTemp(o.dir, "feeledger-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, st, scenario.Program, o.logger.With(zap.String("scenario", scenario.Name)))
	if err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     st,
		Keys:      h.keys,
		ProgramID: h.program.ID(),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, st *store.Store, settings ProgramSettings, logger *zap.Logger) (*Harness, error) {
	keys := testutil.NewKeyring()

	var popts []program.Option
	if settings.InitAuthority != "" {
		popts = append(popts, program.WithInitAuthority(keys.PublicKey(settings.InitAuthority)))
	}
	if settings.PaymentMint != "" {
		popts = append(popts, program.WithPaymentMint(keys.PublicKey(settings.PaymentMint)))
	}
	p := program.New(popts...)

	eng, err := engine.New(ctx, st, engine.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := eng.Register(p); err != nil {
		return nil, err
	}

	config, _, err := program.DeriveConfigAddress(p.ID())
	if err != nil {
		return nil, err
	}
	keys.Label(config, ConfigName)
	keys.Label(p.ID(), p.Name())
	keys.Label(solana.SystemProgramID, "system")
	keys.Label(engine.TokenProgramID, "token")

	return &Harness{
		store:   st,
		engine:  eng,
		program: p,
		keys:    keys,
		config:  config,
		logger:  logger,
	}, nil
}

// executeSetup runs all setup steps in order.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep) error {
	for i, step := range setup {
		if err := h.setupStep(ctx, step); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Action, err)
		}
		h.logger.Debug("setup step completed",
			zap.Int("step", i),
			zap.String("action", step.Action))
	}
	return nil
}

func (h *Harness) setupStep(ctx context.Context, step ActionStep) error {
	args := step.Args

	switch step.Action {
	case ActionAirdrop:
		to, _, err := h.accountArg(args, "to")
		if err != nil {
			return err
		}
		lamports, err := uintArg(args, "lamports")
		if err != nil {
			return err
		}
		return h.engine.Airdrop(ctx, to, lamports)

	case ActionCreateMint:
		mint, mintName, err := h.accountArg(args, "mint")
		if err != nil {
			return err
		}
		authority, authorityName, err := h.accountArg(args, "authority")
		if err != nil {
			return err
		}
		payer, payerName, err := h.optionalAccountArg(args, "payer", authorityName)
		if err != nil {
			return err
		}
		decimals, err := optionalUintArg(args, "decimals", 0)
		if err != nil {
			return err
		}
		if decimals > math.MaxUint8 {
			return fmt.Errorf("decimals %d out of range", decimals)
		}
		return h.sendSetup(ctx, []string{payerName, mintName},
			engine.NewCreateMintInstructions(h.engine.Rent(), payer, mint, authority, uint8(decimals))...)

	case ActionCreateTokenAccount:
		account, accountName, err := h.accountArg(args, "account")
		if err != nil {
			return err
		}
		mint, _, err := h.accountArg(args, "mint")
		if err != nil {
			return err
		}
		owner, ownerName, err := h.accountArg(args, "owner")
		if err != nil {
			return err
		}
		payer, payerName, err := h.optionalAccountArg(args, "payer", ownerName)
		if err != nil {
			return err
		}
		return h.sendSetup(ctx, []string{payerName, accountName},
			engine.NewCreateTokenAccountInstructions(h.engine.Rent(), payer, account, mint, owner)...)

	case ActionMintTo:
		mint, _, err := h.accountArg(args, "mint")
		if err != nil {
			return err
		}
		to, _, err := h.accountArg(args, "to")
		if err != nil {
			return err
		}
		authority, authorityName, err := h.accountArg(args, "authority")
		if err != nil {
			return err
		}
		amount, err := uintArg(args, "amount")
		if err != nil {
			return err
		}
		return h.sendSetup(ctx, []string{authorityName},
			engine.NewMintToInstruction(amount, mint, to, authority))

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

func (h *Harness) sendSetup(ctx context.Context, signers []string, instrs ...solana.Instruction) error {
	tx, err := h.buildTx(signers, instrs...)
	if err != nil {
		return err
	}
	_, err = h.engine.SendTransaction(ctx, tx)
	return err
}

// executeFlow sends every flow step as its own transaction and validates
// its expect clause. Program and runtime failures are outcomes, not
// harness errors: they are recorded in the trace with their error tag.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		inst, signers, err := h.buildInstruction(step)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}
		if len(step.Signers) > 0 {
			signers = step.Signers
		}
		tx, err := h.buildTx(signers, inst)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}

		receipt, sendErr := h.engine.SendTransaction(ctx, tx)
		if sendErr != nil && engine.ErrorTag(sendErr) == engine.ErrorTagInternal {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, sendErr)
		}

		event, err := h.traceEvent(i, step.Invoke, inst, receipt, sendErr)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}
		result.AddEvent(event)

		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, event) {
				result.AddError(msg)
			}
		}

		h.logger.Debug("flow step completed",
			zap.Int("step", i),
			zap.String("instruction", step.Invoke),
			zap.String("case", event.Case),
			zap.Int64("slot", event.Slot))
	}
	return nil
}

// buildInstruction returns the step's instruction and its default signers.
func (h *Harness) buildInstruction(step FlowStep) (solana.Instruction, []string, error) {
	args := step.Args
	programID := h.program.ID()

	switch step.Invoke {
	case program.InstructionInitialize:
		authority, authorityName, err := h.accountArg(args, "authority")
		if err != nil {
			return nil, nil, err
		}
		feeDest, _, err := h.accountArg(args, "fee_destination")
		if err != nil {
			return nil, nil, err
		}
		inst, err := program.NewInitializeInstruction(programID, authority, feeDest)
		return inst, []string{authorityName}, err

	case program.InstructionUpdate:
		admin, adminName, err := h.accountArg(args, "admin")
		if err != nil {
			return nil, nil, err
		}
		feeDest, _, err := h.accountArg(args, "fee_destination")
		if err != nil {
			return nil, nil, err
		}
		newAdmin, _, err := h.optionalAccountArg(args, "new_admin", adminName)
		if err != nil {
			return nil, nil, err
		}
		newFee, err := uintArg(args, "new_fee_basis_points")
		if err != nil {
			return nil, nil, err
		}
		inst, err := program.NewUpdateInstruction(programID, admin, feeDest, newAdmin, newFee)
		return inst, []string{adminName}, err

	case program.InstructionPayment:
		sender, senderName, err := h.accountArg(args, "sender")
		if err != nil {
			return nil, nil, err
		}
		senderToken, _, err := h.accountArg(args, "sender_token")
		if err != nil {
			return nil, nil, err
		}
		receiverToken, _, err := h.accountArg(args, "receiver_token")
		if err != nil {
			return nil, nil, err
		}
		feeDest, _, err := h.accountArg(args, "fee_destination")
		if err != nil {
			return nil, nil, err
		}
		amount, err := uintArg(args, "amount")
		if err != nil {
			return nil, nil, err
		}
		inst, err := program.NewPaymentInstruction(programID, feeDest, senderToken, receiverToken, sender, amount)
		return inst, []string{senderName}, err

	default:
		return nil, nil, fmt.Errorf("unknown instruction %q", step.Invoke)
	}
}

// buildTx builds a transaction against the latest blockhash. The first
// signer pays.
func (h *Harness) buildTx(signers []string, instrs ...solana.Instruction) (*solana.Transaction, error) {
	if len(signers) == 0 {
		return nil, fmt.Errorf("no signers")
	}
	tx, err := solana.NewTransaction(instrs, h.engine.LatestBlockhash(),
		solana.TransactionPayer(h.keys.PublicKey(signers[0])))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(h.keys.Signer(signers...)); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

func (h *Harness) traceEvent(step int, name string, inst solana.Instruction, receipt *engine.Receipt, sendErr error) (TraceEvent, error) {
	metas := inst.Accounts()
	accounts := make([]string, len(metas))
	for j, meta := range metas {
		accounts[j] = h.keys.Name(meta.PublicKey)
	}

	data, err := inst.Data()
	if err != nil {
		return TraceEvent{}, err
	}
	_, args, err := h.program.Describe(data)
	if err != nil {
		return TraceEvent{}, err
	}

	event := TraceEvent{
		Step:        step,
		Instruction: name,
		Accounts:    accounts,
		Args:        argsToMap(args),
		Case:        CaseSuccess,
	}
	if receipt != nil {
		event.Slot = receipt.Slot
		event.Signature = receipt.Signature.String()
		event.Logs = receipt.Logs
	}
	if sendErr != nil {
		event.Case = engine.ErrorTag(sendErr)
		event.Message = sendErr.Error()
		return event, nil
	}

	if name == program.InstructionPayment && len(receipt.ReturnData) > 0 {
		r, err := program.DecodePaymentResult(receipt.ReturnData)
		if err != nil {
			return TraceEvent{}, err
		}
		event.Result = map[string]uint64{"fee": r.Fee, "net": r.Net}
	}
	return event, nil
}

// checkExpect compares a flow step's outcome with its expect clause.
func checkExpect(expect *ExpectClause, event TraceEvent) []string {
	var errs []string
	if expect.Case != event.Case {
		msg := fmt.Sprintf("flow[%d] %s: expected case %q, got %q", event.Step, event.Instruction, expect.Case, event.Case)
		if event.Message != "" {
			msg += " (" + event.Message + ")"
		}
		errs = append(errs, msg)
	}

	for _, key := range sortedKeys(expect.Result) {
		want, err := toUint64(expect.Result[key])
		if err != nil {
			errs = append(errs, fmt.Sprintf("flow[%d] %s: result %q: %v", event.Step, event.Instruction, key, err))
			continue
		}
		got, ok := event.Result[key]
		if !ok {
			errs = append(errs, fmt.Sprintf("flow[%d] %s: result %q missing", event.Step, event.Instruction, key))
			continue
		}
		if got != want {
			errs = append(errs, fmt.Sprintf("flow[%d] %s: result %q = %d, expected %d", event.Step, event.Instruction, key, got, want))
		}
	}
	return errs
}

// accountArg resolves a key-name argument to its address.
func (h *Harness) accountArg(args map[string]interface{}, key string) (solana.PublicKey, string, error) {
	name, ok := args[key].(string)
	if !ok || name == "" {
		return solana.PublicKey{}, "", fmt.Errorf("argument %q must be a key name", key)
	}
	return h.resolve(name), name, nil
}

func (h *Harness) optionalAccountArg(args map[string]interface{}, key, fallback string) (solana.PublicKey, string, error) {
	if _, ok := args[key]; !ok {
		return h.resolve(fallback), fallback, nil
	}
	return h.accountArg(args, key)
}

// resolve maps a key name to an address. ConfigName is the program
// config account.
func (h *Harness) resolve(name string) solana.PublicKey {
	if name == ConfigName {
		return h.config
	}
	return h.keys.PublicKey(name)
}

func uintArg(args map[string]interface{}, key string) (uint64, error) {
	v, err := toUint64(args[key])
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", key, err)
	}
	return v, nil
}

func optionalUintArg(args map[string]interface{}, key string, fallback uint64) (uint64, error) {
	if _, ok := args[key]; !ok {
		return fallback, nil
	}
	return uintArg(args, key)
}

// toUint64 accepts the integer types yaml.v3 produces.
func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case uint64:
		return n, nil
	case nil:
		return 0, fmt.Errorf("value is required")
	default:
		return 0, fmt.Errorf("expected a non-negative integer, got %T", v)
	}
}

func argsToMap(args ir.IRObject) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = ir.ToAny(v)
	}
	return out
}
