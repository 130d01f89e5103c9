package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/feeledger/internal/program"
)

// Scenario defines a conformance test scenario.
// Scenarios prepare a ledger, run a flow of program instructions and
// assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program configures the deployed program.
	Program ProgramSettings `yaml:"program,omitempty"`

	// Setup contains ledger actions run before the flow (airdrops, mints,
	// token accounts). A failing setup step aborts the run.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow contains the program instructions under test, each sent as its
	// own transaction.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// ProgramSettings mirrors the program deployment options. Values are key
// names.
type ProgramSettings struct {
	InitAuthority string `yaml:"init_authority,omitempty"`
	PaymentMint   string `yaml:"payment_mint,omitempty"`
}

// ActionStep is one setup action.
type ActionStep struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Args holds the action arguments. Account arguments are key names.
	Args map[string]interface{} `yaml:"args"`
}

// FlowStep is one program instruction.
type FlowStep struct {
	// Invoke is the instruction name, e.g. "payment".
	Invoke string `yaml:"invoke"`

	// Args holds the instruction arguments. Account arguments are key names.
	Args map[string]interface{} `yaml:"args"`

	// Signers overrides the keys that sign the transaction. The first
	// signer pays. Defaults to the instruction's signing account.
	Signers []string `yaml:"signers,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, no validation is performed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a flow step.
type ExpectClause struct {
	// Case is "Success" or the expected error tag (e.g. "InvalidFeeRate").
	Case string `yaml:"case"`

	// Result contains expected return values (fee, net).
	// Subset match: only the listed fields are checked.
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is the instruction name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Case restricts trace_contains and trace_count to steps with this outcome.
	Case string `yaml:"case,omitempty"`

	// Args are the expected instruction arguments (trace_contains).
	// Subset match.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected instruction order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Account names the token account (token_balance).
	Account string `yaml:"account,omitempty"`

	// Amount is the expected token balance (token_balance).
	Amount *uint64 `yaml:"amount,omitempty"`

	// Expect holds the expected config fields (config): admin and
	// fee_destination as key names, fee_basis_points as a number.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Absent asserts that the program config does not exist (config).
	Absent bool `yaml:"absent,omitempty"`
}

// Setup actions.
const (
	ActionAirdrop            = "airdrop"
	ActionCreateMint         = "create_mint"
	ActionCreateTokenAccount = "create_token_account"
	ActionMintTo             = "mint_to"
)

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertTokenBalance  = "token_balance"
	AssertConfig        = "config"
)

// requiredArgs lists the mandatory arguments of every setup action and
// flow instruction.
var requiredArgs = map[string][]string{
	ActionAirdrop:                 {"to", "lamports"},
	ActionCreateMint:              {"mint", "authority"},
	ActionCreateTokenAccount:      {"account", "mint", "owner"},
	ActionMintTo:                  {"mint", "to", "amount", "authority"},
	program.InstructionInitialize: {"authority", "fee_destination"},
	program.InstructionUpdate:     {"admin", "fee_destination", "new_fee_basis_points"},
	program.InstructionPayment:    {"sender", "sender_token", "receiver_token", "fee_destination", "amount"},
}

var setupActions = map[string]bool{
	ActionAirdrop:            true,
	ActionCreateMint:         true,
	ActionCreateTokenAccount: true,
	ActionMintTo:             true,
}

var flowInstructions = map[string]bool{
	program.InstructionInitialize: true,
	program.InstructionUpdate:     true,
	program.InstructionPayment:    true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario decodes and validates one scenario document.
func ParseScenario(r io.Reader) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: empty document")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads one scenario file, or every *.yaml file of a
// directory in name order.
func LoadScenarios(path string) ([]*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios: %w", err)
	}
	if !info.IsDir() {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		return []*Scenario{s}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", path)
	}
	sort.Strings(files)

	scenarios := make([]*Scenario, 0, len(files))
	seen := make(map[string]string, len(files))
	for _, file := range files {
		s, err := LoadScenario(file)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("scenario %q defined in both %s and %s", s.Name, prev, file)
		}
		seen[s.Name] = file
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if !setupActions[step.Action] {
			return fmt.Errorf("setup[%d]: unknown action %q", i, step.Action)
		}
		if err := checkArgs(step.Action, step.Args); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if !flowInstructions[step.Invoke] {
			return fmt.Errorf("flow[%d]: unknown instruction %q", i, step.Invoke)
		}
		if err := checkArgs(step.Invoke, step.Args); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func checkArgs(name string, args map[string]interface{}) error {
	for _, key := range requiredArgs[name] {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("%s: argument %q is required", name, key)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTokenBalance:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for token_balance", index)
		}
		if a.Amount == nil {
			return fmt.Errorf("assertions[%d]: amount is required for token_balance", index)
		}
	case AssertConfig:
		if a.Absent && len(a.Expect) > 0 {
			return fmt.Errorf("assertions[%d]: config cannot be both absent and expected", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for config", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
