package engine

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/roach88/feeledger/internal/ir"
)

// SystemProgram creates accounts and moves lamports.
//
// Supported instructions: CreateAccount and Transfer, in the standard
// system program wire format.
type SystemProgram struct{}

// NewSystemProgram returns the builtin system program.
func NewSystemProgram() *SystemProgram {
	return &SystemProgram{}
}

// ID implements Program.
func (*SystemProgram) ID() solana.PublicKey { return solana.SystemProgramID }

// Name implements Program.
func (*SystemProgram) Name() string { return "system" }

// Execute implements Program.
func (p *SystemProgram) Execute(ic *InvokeContext, data []byte) error {
	inst, err := system.DecodeInstruction(nil, data)
	if err != nil {
		return NewRuntimeError(ErrCodeInvalidInstructionData, "system: %v", err)
	}

	switch impl := inst.Impl.(type) {
	case *system.CreateAccount:
		return p.createAccount(ic, impl)
	case *system.Transfer:
		return p.transfer(ic, impl)
	default:
		return NewRuntimeError(ErrCodeInvalidInstructionData,
			"system: unsupported instruction %s", system.InstructionIDToName(inst.TypeID.Uint32()))
	}
}

// Describe implements Describer.
func (*SystemProgram) Describe(data []byte) (string, ir.IRObject, error) {
	inst, err := system.DecodeInstruction(nil, data)
	if err != nil {
		return "", nil, err
	}
	switch impl := inst.Impl.(type) {
	case *system.CreateAccount:
		return "create_account", ir.IRObject{
			"lamports": ir.IRUint(*impl.Lamports),
			"space":    ir.IRUint(*impl.Space),
			"owner":    ir.IRString(impl.Owner.String()),
		}, nil
	case *system.Transfer:
		return "transfer", ir.IRObject{
			"lamports": ir.IRUint(*impl.Lamports),
		}, nil
	default:
		return "", nil, fmt.Errorf("unsupported system instruction %d", inst.TypeID.Uint32())
	}
}

// Accounts: [funder (s, w), new account (s, w)].
func (*SystemProgram) createAccount(ic *InvokeContext, inst *system.CreateAccount) error {
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	funder, _ := ic.Account(0)
	newAccount, _ := ic.Account(1)

	if err := ic.RequireSigner(funder.PublicKey); err != nil {
		return err
	}
	if err := ic.RequireSigner(newAccount.PublicKey); err != nil {
		return err
	}
	return ic.createAccount(funder.PublicKey, newAccount.PublicKey, *inst.Owner, *inst.Space, *inst.Lamports)
}

// Accounts: [from (s, w), to (w)].
func (*SystemProgram) transfer(ic *InvokeContext, inst *system.Transfer) error {
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	fromMeta, _ := ic.Account(0)
	toMeta, _ := ic.Account(1)
	lamports := *inst.Lamports

	if err := ic.RequireSigner(fromMeta.PublicKey); err != nil {
		return err
	}

	from, err := ic.Load(fromMeta.PublicKey)
	if err != nil {
		return err
	}
	if len(from.Data) > 0 {
		return NewRuntimeError(ErrCodeInvalidAccountData, "transfer source %s carries data", from.Address)
	}
	if from.Lamports < lamports {
		return NewRuntimeError(ErrCodeInsufficientFunds,
			"%s has %d lamports, needs %d", from.Address, from.Lamports, lamports).
			WithDetail("account", from.Address.String())
	}
	if fromMeta.PublicKey.Equals(toMeta.PublicKey) {
		return nil
	}
	from.Lamports -= lamports
	if err := ic.write(solana.SystemProgramID, from); err != nil {
		return err
	}

	exists, err := ic.Exists(toMeta.PublicKey)
	if err != nil {
		return err
	}
	var to = newSystemAccount(toMeta.PublicKey)
	if exists {
		if to, err = ic.Load(toMeta.PublicKey); err != nil {
			return err
		}
	}
	if to.Lamports > math.MaxInt64-lamports {
		return NewRuntimeError(ErrCodeArithmeticOverflow, "transfer overflows %s", to.Address)
	}
	to.Lamports += lamports
	return ic.write(solana.SystemProgramID, to)
}
