package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/roach88/feeledger/internal/engine"
	"github.com/roach88/feeledger/internal/program"
	"github.com/roach88/feeledger/internal/store"
	"github.com/roach88/feeledger/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", event.Step, event.Instruction, event.Args, event.Case)
		}
	}

	return buf.String()
}

// AssertionContext provides ledger access for state assertions.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	Keys      *testutil.Keyring
	ProgramID solana.PublicKey
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// State assertions need actx; trace assertions do not.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTokenBalance, AssertConfig:
			if actx == nil || actx.Store == nil || actx.Keys == nil {
				err = fmt.Errorf("assertion[%d]: %s requires ledger context", i, assertion.Type)
			} else if assertion.Type == AssertTokenBalance {
				err = assertTokenBalance(actx, assertion)
			} else {
				err = assertConfig(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// assertTraceContains checks that a step of the given instruction (and
// case, if set) carries the given args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchesEvent(event, assertion) && matchArgs(event.Args, assertion.Args) {
			return nil
		}
	}

	expected := fmt.Sprintf("instruction %s with args %v", assertion.Action, assertion.Args)
	if assertion.Case != "" {
		expected += " and case " + assertion.Case
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that instructions first appear in the given order.
// Instructions don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Instruction]; !seen {
			positions[event.Instruction] = i + 1 // 1-indexed for readability
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all instructions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing instruction: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("instructions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that the instruction (and case, if set) appears
// exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchesEvent(event, assertion) {
			count++
		}
	}

	if count != assertion.Count {
		what := assertion.Action
		if assertion.Case != "" {
			what += " (" + assertion.Case + ")"
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertTokenBalance checks the amount held by a token account.
func assertTokenBalance(actx *AssertionContext, assertion Assertion) error {
	addr := actx.Keys.PublicKey(assertion.Account)
	acc, err := actx.Store.GetAccount(actx.Ctx, addr)
	if err != nil {
		return &AssertionError{
			Type:     AssertTokenBalance,
			Expected: fmt.Sprintf("token account %s", assertion.Account),
			Actual:   err.Error(),
		}
	}
	tok, err := engine.DecodeTokenAccount(acc.Data)
	if err != nil {
		return &AssertionError{
			Type:     AssertTokenBalance,
			Expected: fmt.Sprintf("token account %s", assertion.Account),
			Actual:   err.Error(),
		}
	}

	if tok.Amount != *assertion.Amount {
		return &AssertionError{
			Type:     AssertTokenBalance,
			Expected: fmt.Sprintf("%s holds %d", assertion.Account, *assertion.Amount),
			Actual:   fmt.Sprintf("%s holds %d", assertion.Account, tok.Amount),
		}
	}
	return nil
}

// assertConfig checks the stored program config. Keys are compared by name.
func assertConfig(actx *AssertionContext, assertion Assertion) error {
	cfg, err := program.FetchConfig(actx.Ctx, actx.Store, actx.ProgramID)
	if assertion.Absent {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil
		}
		actual := "config exists"
		if err != nil {
			actual = err.Error()
		}
		return &AssertionError{Type: AssertConfig, Expected: "no program config", Actual: actual}
	}
	if err != nil {
		return &AssertionError{Type: AssertConfig, Expected: "program config", Actual: err.Error()}
	}

	actual := map[string]any{
		"admin":            actx.Keys.Name(cfg.Admin),
		"fee_destination":  actx.Keys.Name(cfg.FeeDestination),
		"fee_basis_points": uint64(cfg.FeeBasisPoints),
	}
	for _, key := range sortedKeys(assertion.Expect) {
		got, ok := actual[key]
		if !ok {
			return fmt.Errorf("config assertion: unknown field %q", key)
		}
		if !valuesEqual(got, assertion.Expect[key]) {
			return &AssertionError{
				Type:     AssertConfig,
				Expected: fmt.Sprintf("%s = %v", key, assertion.Expect[key]),
				Actual:   fmt.Sprintf("%s = %v", key, got),
			}
		}
	}
	return nil
}

func matchesEvent(event TraceEvent, assertion Assertion) bool {
	if event.Instruction != assertion.Action {
		return false
	}
	return assertion.Case == "" || event.Case == assertion.Case
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual map[string]any, expected map[string]interface{}) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values, treating integers of any width alike.
func valuesEqual(actual, expected interface{}) bool {
	a, aErr := toUint64(actual)
	e, eErr := toUint64(expected)
	if aErr == nil && eErr == nil {
		return a == e
	}
	return reflect.DeepEqual(actual, expected)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
