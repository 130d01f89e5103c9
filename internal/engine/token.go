package engine

import (
	"bytes"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/roach88/feeledger/internal/ir"
	"github.com/roach88/feeledger/internal/store"
)

// Account layouts of the token program.
const (
	MintSize         = 82
	TokenAccountSize = 165
)

// TokenProgramID is the id the builtin token program is registered under.
var TokenProgramID = solana.TokenProgramID

// TokenProgram keeps SPL-compatible mints and token accounts.
//
// Supported instructions: InitializeMint2, InitializeAccount3, Transfer and
// MintTo. Delegates, freezing and multisig are not supported.
type TokenProgram struct{}

// NewTokenProgram returns the builtin token program.
func NewTokenProgram() *TokenProgram {
	return &TokenProgram{}
}

// ID implements Program.
func (*TokenProgram) ID() solana.PublicKey { return TokenProgramID }

// Name implements Program.
func (*TokenProgram) Name() string { return "token" }

// Execute implements Program.
func (p *TokenProgram) Execute(ic *InvokeContext, data []byte) error {
	inst, err := token.DecodeInstruction(nil, data)
	if err != nil {
		return NewRuntimeError(ErrCodeInvalidInstructionData, "token: %v", err)
	}

	switch impl := inst.Impl.(type) {
	case *token.InitializeMint2:
		ic.Logf("Instruction: InitializeMint2")
		return p.initializeMint(ic, impl)
	case *token.InitializeAccount3:
		ic.Logf("Instruction: InitializeAccount3")
		return p.initializeAccount(ic, impl)
	case *token.Transfer:
		ic.Logf("Instruction: Transfer")
		if err := ic.RequireAccounts(3); err != nil {
			return err
		}
		source, _ := ic.Account(0)
		destination, _ := ic.Account(1)
		authority, _ := ic.Account(2)
		return ic.tokenTransfer(source.PublicKey, destination.PublicKey, authority.PublicKey, *impl.Amount)
	case *token.MintTo:
		ic.Logf("Instruction: MintTo")
		return p.mintTo(ic, impl)
	default:
		return NewRuntimeError(ErrCodeInvalidInstructionData,
			"token: unsupported instruction %s", token.InstructionIDToName(inst.TypeID.Uint8()))
	}
}

// Describe implements Describer.
func (*TokenProgram) Describe(data []byte) (string, ir.IRObject, error) {
	inst, err := token.DecodeInstruction(nil, data)
	if err != nil {
		return "", nil, err
	}
	switch impl := inst.Impl.(type) {
	case *token.InitializeMint2:
		return "initialize_mint2", ir.IRObject{
			"decimals":       ir.IRUint(*impl.Decimals),
			"mint_authority": ir.IRString(impl.MintAuthority.String()),
		}, nil
	case *token.InitializeAccount3:
		return "initialize_account3", ir.IRObject{
			"owner": ir.IRString(impl.Owner.String()),
		}, nil
	case *token.Transfer:
		return "transfer", ir.IRObject{"amount": ir.IRUint(*impl.Amount)}, nil
	case *token.MintTo:
		return "mint_to", ir.IRObject{"amount": ir.IRUint(*impl.Amount)}, nil
	default:
		return "", nil, fmt.Errorf("unsupported token instruction %d", inst.TypeID.Uint8())
	}
}

// Accounts: [mint (w)].
func (*TokenProgram) initializeMint(ic *InvokeContext, inst *token.InitializeMint2) error {
	meta, err := ic.Account(0)
	if err != nil {
		return err
	}
	acc, err := loadTokenOwned(ic, meta.PublicKey, MintSize)
	if err != nil {
		return err
	}
	mint, err := DecodeMint(acc.Data)
	if err != nil {
		return err
	}
	if mint.IsInitialized {
		return NewRuntimeError(ErrCodeAccountAlreadyInUse, "mint %s already initialized", meta.PublicKey)
	}

	authority := *inst.MintAuthority
	mint.MintAuthority = &authority
	mint.FreezeAuthority = inst.FreezeAuthority
	mint.Decimals = *inst.Decimals
	mint.IsInitialized = true

	return saveTokenState(ic, acc, mint)
}

// Accounts: [account (w), mint].
func (*TokenProgram) initializeAccount(ic *InvokeContext, inst *token.InitializeAccount3) error {
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	accountMeta, _ := ic.Account(0)
	mintMeta, _ := ic.Account(1)

	mintAcc, err := loadTokenOwned(ic, mintMeta.PublicKey, MintSize)
	if err != nil {
		return err
	}
	mint, err := DecodeMint(mintAcc.Data)
	if err != nil {
		return err
	}
	if !mint.IsInitialized {
		return NewRuntimeError(ErrCodeUninitializedAccount, "mint %s is not initialized", mintMeta.PublicKey)
	}

	acc, err := loadTokenOwned(ic, accountMeta.PublicKey, TokenAccountSize)
	if err != nil {
		return err
	}
	state, err := DecodeTokenAccount(acc.Data)
	if err != nil {
		return err
	}
	if state.State != token.Uninitialized {
		return NewRuntimeError(ErrCodeAccountAlreadyInUse, "token account %s already initialized", accountMeta.PublicKey)
	}

	state.Mint = mintMeta.PublicKey
	state.Owner = *inst.Owner
	state.State = token.Initialized
	return saveTokenState(ic, acc, state)
}

// Accounts: [mint (w), destination (w), authority (s)].
func (*TokenProgram) mintTo(ic *InvokeContext, inst *token.MintTo) error {
	if err := ic.RequireAccounts(3); err != nil {
		return err
	}
	mintMeta, _ := ic.Account(0)
	destMeta, _ := ic.Account(1)
	authority, _ := ic.Account(2)
	amount := *inst.Amount

	if err := ic.RequireSigner(authority.PublicKey); err != nil {
		return err
	}

	mintAcc, err := loadTokenOwned(ic, mintMeta.PublicKey, MintSize)
	if err != nil {
		return err
	}
	mint, err := DecodeMint(mintAcc.Data)
	if err != nil {
		return err
	}
	if !mint.IsInitialized {
		return NewRuntimeError(ErrCodeUninitializedAccount, "mint %s is not initialized", mintMeta.PublicKey)
	}
	if mint.MintAuthority == nil || !mint.MintAuthority.Equals(authority.PublicKey) {
		return NewRuntimeError(ErrCodeOwnerMismatch, "%s is not the mint authority of %s", authority.PublicKey, mintMeta.PublicKey)
	}

	destAcc, dest, err := ic.loadTokenAccount(destMeta.PublicKey)
	if err != nil {
		return err
	}
	if !dest.Mint.Equals(mintMeta.PublicKey) {
		return NewRuntimeError(ErrCodeMintMismatch, "token account %s holds mint %s, not %s", destMeta.PublicKey, dest.Mint, mintMeta.PublicKey)
	}
	if mint.Supply > math.MaxUint64-amount || dest.Amount > math.MaxUint64-amount {
		return NewRuntimeError(ErrCodeArithmeticOverflow, "minting %d overflows", amount)
	}

	mint.Supply += amount
	dest.Amount += amount
	if err := saveTokenState(ic, mintAcc, mint); err != nil {
		return err
	}
	return saveTokenState(ic, destAcc, dest)
}

// LoadTokenAccount loads and decodes an initialized token account.
func (ic *InvokeContext) LoadTokenAccount(key solana.PublicKey) (*token.Account, error) {
	_, state, err := ic.loadTokenAccount(key)
	return state, err
}

func (ic *InvokeContext) loadTokenAccount(key solana.PublicKey) (store.Account, *token.Account, error) {
	acc, err := loadTokenOwned(ic, key, TokenAccountSize)
	if err != nil {
		return store.Account{}, nil, err
	}
	state, err := DecodeTokenAccount(acc.Data)
	if err != nil {
		return store.Account{}, nil, err
	}
	if state.State == token.Uninitialized {
		return store.Account{}, nil, NewRuntimeError(ErrCodeUninitializedAccount, "token account %s is not initialized", key).
			WithDetail("account", key.String())
	}
	return acc, state, nil
}

// tokenTransfer moves tokens between two accounts of the same mint. The
// authority must sign and own the source account.
func (ic *InvokeContext) tokenTransfer(source, destination, authority solana.PublicKey, amount uint64) error {
	if err := ic.RequireSigner(authority); err != nil {
		return err
	}

	srcAcc, src, err := ic.loadTokenAccount(source)
	if err != nil {
		return err
	}
	dstAcc, dst, err := ic.loadTokenAccount(destination)
	if err != nil {
		return err
	}

	if !src.Owner.Equals(authority) {
		return NewRuntimeError(ErrCodeOwnerMismatch, "%s does not own token account %s", authority, source).
			WithDetail("account", source.String())
	}
	if !src.Mint.Equals(dst.Mint) {
		return NewRuntimeError(ErrCodeMintMismatch, "cannot move mint %s into account of mint %s", src.Mint, dst.Mint)
	}
	if src.Amount < amount {
		return NewRuntimeError(ErrCodeInsufficientFunds,
			"token account %s holds %d, needs %d", source, src.Amount, amount).
			WithDetail("account", source.String())
	}
	if source.Equals(destination) {
		return nil
	}
	if dst.Amount > math.MaxUint64-amount {
		return NewRuntimeError(ErrCodeArithmeticOverflow, "transfer overflows token account %s", destination)
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := saveTokenState(ic, srcAcc, src); err != nil {
		return err
	}
	return saveTokenState(ic, dstAcc, dst)
}

func loadTokenOwned(ic *InvokeContext, key solana.PublicKey, size int) (store.Account, error) {
	acc, err := ic.Load(key)
	if err != nil {
		return store.Account{}, err
	}
	if !acc.Owner.Equals(TokenProgramID) {
		return store.Account{}, NewRuntimeError(ErrCodeInvalidAccountData,
			"account %s is owned by %s, not the token program", key, acc.Owner).
			WithDetail("account", key.String())
	}
	if len(acc.Data) != size {
		return store.Account{}, NewRuntimeError(ErrCodeInvalidAccountData,
			"account %s has %d bytes, want %d", key, len(acc.Data), size)
	}
	return acc, nil
}

func saveTokenState(ic *InvokeContext, acc store.Account, state any) error {
	data, err := encodeTokenState(state)
	if err != nil {
		return err
	}
	acc.Data = data
	return ic.write(TokenProgramID, acc)
}

func encodeTokenState(state any) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(state); err != nil {
		return nil, fmt.Errorf("encode token state: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeMint decodes mint account data.
func DecodeMint(data []byte) (*token.Mint, error) {
	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return nil, NewRuntimeError(ErrCodeInvalidAccountData, "decode mint: %v", err)
	}
	return &mint, nil
}

// DecodeTokenAccount decodes token account data.
func DecodeTokenAccount(data []byte) (*token.Account, error) {
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return nil, NewRuntimeError(ErrCodeInvalidAccountData, "decode token account: %v", err)
	}
	return &acc, nil
}

// NewCreateMintInstructions returns the instructions that allocate and
// initialize a mint. Both payer and mint must sign.
func NewCreateMintInstructions(rent Rent, payer, mint, authority solana.PublicKey, decimals uint8) []solana.Instruction {
	return []solana.Instruction{
		system.NewCreateAccountInstruction(
			rent.MinimumBalance(MintSize), MintSize, TokenProgramID, payer, mint,
		).Build(),
		token.NewInitializeMint2InstructionBuilder().
			SetDecimals(decimals).
			SetMintAuthority(authority).
			SetMintAccount(mint).
			Build(),
	}
}

// NewCreateTokenAccountInstructions returns the instructions that allocate
// and initialize a token account for owner. Both payer and account must sign.
func NewCreateTokenAccountInstructions(rent Rent, payer, account, mint, owner solana.PublicKey) []solana.Instruction {
	return []solana.Instruction{
		system.NewCreateAccountInstruction(
			rent.MinimumBalance(TokenAccountSize), TokenAccountSize, TokenProgramID, payer, account,
		).Build(),
		token.NewInitializeAccount3Instruction(owner, account, mint).Build(),
	}
}

// NewMintToInstruction returns a MintTo instruction signed by authority.
func NewMintToInstruction(amount uint64, mint, destination, authority solana.PublicKey) solana.Instruction {
	return token.NewMintToInstruction(amount, mint, destination, authority, nil).Build()
}

// NewTokenTransferInstruction returns a token Transfer signed by owner.
func NewTokenTransferInstruction(amount uint64, source, destination, owner solana.PublicKey) solana.Instruction {
	return token.NewTransferInstruction(amount, source, destination, owner, nil).Build()
}
