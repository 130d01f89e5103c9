package harness

// Outcome cases reported for flow steps. Failed steps report the error tag
// instead, e.g. "InvalidFeeRate" or "InsufficientFunds".
const (
	CaseSuccess = "Success"
)

// TraceEvent is one flow step as the ledger saw it.
type TraceEvent struct {
	Step        int               `json:"step"`
	Instruction string            `json:"instruction"`
	Accounts    []string          `json:"accounts"`          // account names in instruction order
	Args        map[string]any    `json:"args"`              // decoded instruction arguments
	Case        string            `json:"case"`              // CaseSuccess or the error tag
	Message     string            `json:"message,omitempty"` // error message when the step failed
	Result      map[string]uint64 `json:"result,omitempty"`  // decoded return data
	Slot        int64             `json:"slot"`              // 0 when the transaction was rejected
	Logs        []string          `json:"logs,omitempty"`    // program logs
	Signature   string            `json:"signature,omitempty"`
}

// Succeeded reports whether the step committed.
func (e TraceEvent) Succeeded() bool {
	return e.Case == CaseSuccess
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a flow step to the trace.
func (r *Result) AddEvent(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
