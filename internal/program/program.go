package program

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/roach88/feeledger/internal/engine"
	"github.com/roach88/feeledger/internal/ir"
)

// Program is the fee-splitting payment program. It implements
// engine.Program and engine.Describer.
type Program struct {
	id            solana.PublicKey
	initAuthority *solana.PublicKey
	paymentMint   *solana.PublicKey
}

// Option configures a Program.
type Option func(*Program)

// WithProgramID deploys the program under id. Default: DefaultProgramID.
func WithProgramID(id solana.PublicKey) Option {
	return func(p *Program) {
		p.id = id
	}
}

// WithInitAuthority restricts initialize_program_config to authority.
// Default: any signer may initialize.
func WithInitAuthority(authority solana.PublicKey) Option {
	return func(p *Program) {
		p.initAuthority = &authority
	}
}

// WithPaymentMint restricts the fee destination and payment token accounts
// to one mint. Default: any mint.
func WithPaymentMint(mint solana.PublicKey) Option {
	return func(p *Program) {
		p.paymentMint = &mint
	}
}

// New creates the program.
func New(opts ...Option) *Program {
	p := &Program{id: DefaultProgramID}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID implements engine.Program.
func (p *Program) ID() solana.PublicKey { return p.id }

// Name implements engine.Program.
func (p *Program) Name() string { return "feeledger" }

// Execute implements engine.Program.
func (p *Program) Execute(ic *engine.InvokeContext, data []byte) error {
	inst, err := decodeInstruction(data)
	if err != nil {
		return err
	}
	switch inst.name {
	case InstructionInitialize:
		ic.Logf("Instruction: InitializeProgramConfig")
		return p.initialize(ic)
	case InstructionUpdate:
		ic.Logf("Instruction: UpdateProgramConfig")
		return p.update(ic, inst.newFee)
	case InstructionPayment:
		ic.Logf("Instruction: Payment")
		return p.payment(ic, inst.amount)
	default:
		return ErrInvalidInstructionData.withf("unhandled instruction %s", inst.name)
	}
}

// Describe implements engine.Describer.
func (p *Program) Describe(data []byte) (string, ir.IRObject, error) {
	inst, err := decodeInstruction(data)
	if err != nil {
		return "", nil, err
	}
	switch inst.name {
	case InstructionUpdate:
		return inst.name, ir.IRObject{"new_fee_basis_points": ir.IRUint(inst.newFee)}, nil
	case InstructionPayment:
		return inst.name, ir.IRObject{"amount": ir.IRUint(inst.amount)}, nil
	default:
		return inst.name, ir.IRObject{}, nil
	}
}

// Accounts: [config (w), fee_destination, authority (s, w), system_program].
func (p *Program) initialize(ic *engine.InvokeContext) error {
	if err := ic.RequireAccounts(4); err != nil {
		return err
	}
	configMeta, _ := ic.Account(0)
	feeDestMeta, _ := ic.Account(1)
	authorityMeta, _ := ic.Account(2)
	authority := authorityMeta.PublicKey

	if err := ic.RequireSigner(authority); err != nil {
		return err
	}
	if p.initAuthority != nil && !authority.Equals(*p.initAuthority) {
		return ErrUnauthorized.withf("%s may not initialize the program config", authority)
	}
	if err := p.requireConfigAddress(ic, configMeta.PublicKey); err != nil {
		return err
	}
	initialized, err := p.configInitialized(ic, configMeta.PublicKey)
	if err != nil {
		return err
	}
	if initialized {
		return ErrAlreadyInitialized.withf("config %s exists", configMeta.PublicKey)
	}
	if err := p.validateFeeDestination(ic, feeDestMeta.PublicKey); err != nil {
		return err
	}

	addr, bump, err := ic.CreatePDA(authority, [][]byte{[]byte(ConfigSeed)}, ConfigAccountSize)
	if err != nil {
		return err
	}
	cfg := &ProgramConfig{
		Admin:          authority,
		FeeDestination: feeDestMeta.PublicKey,
		FeeBasisPoints: DefaultFeeBasisPoints,
		Bump:           bump,
	}
	if err := p.saveConfig(ic, addr, cfg); err != nil {
		return err
	}

	ic.Logger().Debug("program config initialized",
		zap.Stringer("admin", cfg.Admin),
		zap.Stringer("fee_destination", cfg.FeeDestination))
	return nil
}

// Accounts: [config (w), fee_destination, admin (s), new_admin].
func (p *Program) update(ic *engine.InvokeContext, newFee uint64) error {
	if err := ic.RequireAccounts(4); err != nil {
		return err
	}
	configMeta, _ := ic.Account(0)
	feeDestMeta, _ := ic.Account(1)
	adminMeta, _ := ic.Account(2)
	newAdminMeta, _ := ic.Account(3)

	if err := ic.RequireSigner(adminMeta.PublicKey); err != nil {
		return err
	}
	cfg, err := p.loadConfig(ic, configMeta.PublicKey)
	if err != nil {
		return err
	}
	if !adminMeta.PublicKey.Equals(cfg.Admin) {
		return ErrUnauthorized.withf("%s is not admin %s", adminMeta.PublicKey, cfg.Admin)
	}
	if newFee > uint64(MaxFeeBasisPoints) {
		return ErrInvalidFeeRate.withf("%d", newFee)
	}
	if err := p.validateFeeDestination(ic, feeDestMeta.PublicKey); err != nil {
		return err
	}

	previous := *cfg
	cfg.FeeBasisPoints = uint16(newFee)
	cfg.FeeDestination = feeDestMeta.PublicKey
	cfg.Admin = newAdminMeta.PublicKey
	if err := p.saveConfig(ic, configMeta.PublicKey, cfg); err != nil {
		return err
	}

	ic.Logf("fee %d -> %d bps, admin %s -> %s", previous.FeeBasisPoints, cfg.FeeBasisPoints, previous.Admin, cfg.Admin)
	return nil
}

// Accounts: [config, fee_destination (w), sender_token (w), receiver_token (w), sender (s)].
func (p *Program) payment(ic *engine.InvokeContext, amount uint64) error {
	if err := ic.RequireAccounts(5); err != nil {
		return err
	}
	configMeta, _ := ic.Account(0)
	feeDestMeta, _ := ic.Account(1)
	senderTokenMeta, _ := ic.Account(2)
	receiverTokenMeta, _ := ic.Account(3)
	senderMeta, _ := ic.Account(4)

	if err := ic.RequireSigner(senderMeta.PublicKey); err != nil {
		return err
	}
	cfg, err := p.loadConfig(ic, configMeta.PublicKey)
	if err != nil {
		return err
	}
	if !feeDestMeta.PublicKey.Equals(cfg.FeeDestination) {
		return ErrFeeDestinationMismatch.withf("got %s, config has %s", feeDestMeta.PublicKey, cfg.FeeDestination)
	}
	if p.paymentMint != nil {
		for _, key := range []solana.PublicKey{senderTokenMeta.PublicKey, receiverTokenMeta.PublicKey} {
			if err := p.requirePaymentMint(ic, key); err != nil {
				return err
			}
		}
	}

	fee, net, err := SplitFee(amount, cfg.FeeBasisPoints)
	if err != nil {
		return err
	}
	ic.Logf("amount %d at %d bps: fee %d, net %d", amount, cfg.FeeBasisPoints, fee, net)

	sender := senderMeta.PublicKey
	if err := ic.TokenTransfer(senderTokenMeta.PublicKey, feeDestMeta.PublicKey, sender, fee); err != nil {
		return err
	}
	if err := ic.TokenTransfer(senderTokenMeta.PublicKey, receiverTokenMeta.PublicKey, sender, net); err != nil {
		return err
	}

	result, err := encodePaymentResult(PaymentResult{Fee: fee, Net: net})
	if err != nil {
		return err
	}
	ic.SetReturnData(result)
	return nil
}

// requireConfigAddress checks key is this program's config address.
func (p *Program) requireConfigAddress(ic *engine.InvokeContext, key solana.PublicKey) error {
	want, _, err := DeriveConfigAddress(ic.ProgramID())
	if err != nil {
		return err
	}
	if !key.Equals(want) {
		return ErrInvalidConfigAccount.withf("got %s, want %s", key, want)
	}
	return nil
}

// configInitialized reports whether a config was written at key. A
// system account holding only lamports does not count: initialize claims it.
func (p *Program) configInitialized(ic *engine.InvokeContext, key solana.PublicKey) (bool, error) {
	exists, err := ic.Exists(key)
	if err != nil || !exists {
		return false, err
	}
	acc, err := ic.Load(key)
	if err != nil {
		return false, err
	}
	return acc.Owner.Equals(ic.ProgramID()) || len(acc.Data) > 0, nil
}

func (p *Program) loadConfig(ic *engine.InvokeContext, key solana.PublicKey) (*ProgramConfig, error) {
	if err := p.requireConfigAddress(ic, key); err != nil {
		return nil, err
	}
	acc, err := ic.Load(key)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(ic.ProgramID()) {
		return nil, ErrInvalidConfigAccount.withf("%s is owned by %s", key, acc.Owner)
	}
	return DecodeProgramConfig(acc.Data)
}

func (p *Program) saveConfig(ic *engine.InvokeContext, key solana.PublicKey, cfg *ProgramConfig) error {
	acc, err := ic.Load(key)
	if err != nil {
		return err
	}
	data, err := cfg.MarshalAccount()
	if err != nil {
		return err
	}
	acc.Data = data
	return ic.Save(acc)
}

// validateFeeDestination checks key is an initialized token account of the
// payment mint, if one is configured.
func (p *Program) validateFeeDestination(ic *engine.InvokeContext, key solana.PublicKey) error {
	state, err := ic.LoadTokenAccount(key)
	if err != nil {
		var re *engine.RuntimeError
		if errors.As(err, &re) {
			return ErrInvalidFeeDestination.withf("%s: %s", key, re.Message)
		}
		return err
	}
	return p.checkMint(key, state)
}

func (p *Program) requirePaymentMint(ic *engine.InvokeContext, key solana.PublicKey) error {
	state, err := ic.LoadTokenAccount(key)
	if err != nil {
		return err
	}
	return p.checkMint(key, state)
}

func (p *Program) checkMint(key solana.PublicKey, state *token.Account) error {
	if p.paymentMint != nil && !state.Mint.Equals(*p.paymentMint) {
		return ErrInvalidMint.withf("%s holds %s, want %s", key, state.Mint, *p.paymentMint)
	}
	return nil
}
