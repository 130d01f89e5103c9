package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "Initialize only"
flow:
  - invoke: initialize_program_config
    args: { authority: admin, fee_destination: fee-vault }
assertions:
  - type: trace_count
    action: initialize_program_config
    count: 1
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "test.yaml", `
name: test_scenario
description: "Test scenario for validation"
program:
  init_authority: admin
setup:
  - action: airdrop
    args: { to: admin, lamports: 1000 }
flow:
  - invoke: payment
    args:
      sender: sender
      sender_token: sender-usdc
      receiver_token: receiver-usdc
      fee_destination: fee-vault
      amount: 10000
    signers: [sender]
    expect:
      case: Success
      result: { fee: 100 }
assertions:
  - type: token_balance
    account: fee-vault
    amount: 100
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "admin", scenario.Program.InitAuthority)
	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, ActionAirdrop, scenario.Setup[0].Action)
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, "payment", scenario.Flow[0].Invoke)
	assert.Equal(t, []string{"sender"}, scenario.Flow[0].Signers)
	assert.Equal(t, 10000, scenario.Flow[0].Args["amount"])
	require.NotNil(t, scenario.Flow[0].Expect)
	assert.Equal(t, CaseSuccess, scenario.Flow[0].Expect.Case)
	require.Len(t, scenario.Assertions, 1)
	require.NotNil(t, scenario.Assertions[0].Amount)
	assert.Equal(t, uint64(100), *scenario.Assertions[0].Amount)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty document",
			content: "",
			wantErr: "empty document",
		},
		{
			name:    "malformed yaml",
			content: "name: [unclosed",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "unknown field",
			content: minimalScenario + "assertion: []\n",
			wantErr: "field assertion not found",
		},
		{
			name:    "missing name",
			content: strings.Replace(minimalScenario, "name: minimal", "", 1),
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: strings.Replace(minimalScenario, `description: "Initialize only"`, "", 1),
			wantErr: "description is required",
		},
		{
			name: "missing flow",
			content: `
name: x
description: x
assertions:
  - type: config
    absent: true
`,
			wantErr: "flow list is required",
		},
		{
			name: "missing assertions",
			content: `
name: x
description: x
flow:
  - invoke: initialize_program_config
    args: { authority: admin, fee_destination: fee-vault }
`,
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown instruction",
			content: strings.Replace(minimalScenario, "invoke: initialize_program_config", "invoke: close_config", 1),
			wantErr: `flow[0]: unknown instruction "close_config"`,
		},
		{
			name:    "missing instruction argument",
			content: strings.Replace(minimalScenario, ", fee_destination: fee-vault", "", 1),
			wantErr: `argument "fee_destination" is required`,
		},
		{
			name: "unknown setup action",
			content: minimalScenario + `
setup:
  - action: burn
    args: {}
`,
			wantErr: `setup[0]: unknown action "burn"`,
		},
		{
			name: "missing setup argument",
			content: minimalScenario + `
setup:
  - action: mint_to
    args: { mint: usdc, to: sender-usdc, authority: admin }
`,
			wantErr: `argument "amount" is required`,
		},
		{
			name: "expect without case",
			content: `
name: x
description: x
flow:
  - invoke: initialize_program_config
    args: { authority: admin, fee_destination: fee-vault }
    expect:
      result: { fee: 1 }
assertions:
  - type: config
    absent: true
`,
			wantErr: "flow[0].expect: case is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario(strings.NewReader(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAssertion(t *testing.T) {
	amount := uint64(5)

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"missing type", Assertion{}, "type is required"},
		{"unknown type", Assertion{Type: "final_state"}, `unknown assertion type "final_state"`},
		{"trace_contains without action", Assertion{Type: AssertTraceContains}, "action is required"},
		{"trace_order without actions", Assertion{Type: AssertTraceOrder}, "actions list is required"},
		{"trace_count without action", Assertion{Type: AssertTraceCount, Count: 1}, "action is required"},
		{"trace_count negative", Assertion{Type: AssertTraceCount, Action: "payment", Count: -1}, "non-negative"},
		{"token_balance without account", Assertion{Type: AssertTokenBalance, Amount: &amount}, "account is required"},
		{"token_balance without amount", Assertion{Type: AssertTokenBalance, Account: "fee-vault"}, "amount is required"},
		{"config without expect", Assertion{Type: AssertConfig}, "expect or absent is required"},
		{
			"config absent and expected",
			Assertion{Type: AssertConfig, Absent: true, Expect: map[string]interface{}{"admin": "admin"}},
			"both absent and expected",
		},
		{"valid trace_count zero", Assertion{Type: AssertTraceCount, Action: "payment"}, ""},
		{"valid config absent", Assertion{Type: AssertConfig, Absent: true}, ""},
		{"valid token_balance", Assertion{Type: AssertTokenBalance, Account: "fee-vault", Amount: &amount}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(0, &tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenarios_Directory(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yaml", strings.Replace(minimalScenario, "name: minimal", "name: second", 1))
	writeScenario(t, dir, "a.yaml", strings.Replace(minimalScenario, "name: minimal", "name: first", 1))
	writeScenario(t, dir, "notes.txt", "ignored")

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first", scenarios[0].Name)
	assert.Equal(t, "second", scenarios[1].Name)
}

func TestLoadScenarios_SingleFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "one.yaml", minimalScenario)

	scenarios, err := LoadScenarios(path)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "minimal", scenarios[0].Name)
}

func TestLoadScenarios_DuplicateName(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a.yaml", minimalScenario)
	writeScenario(t, dir, "b.yaml", minimalScenario)

	_, err := LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario "minimal" defined in both`)
}

func TestLoadScenarios_EmptyDirectory(t *testing.T) {
	_, err := LoadScenarios(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files")
}

func TestLoadScenarios_ShippedScenariosAreValid(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.NotEmpty(t, scenarios)
}
