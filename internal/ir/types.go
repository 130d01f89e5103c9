package ir

// Transaction status values stored in the log.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// InstructionRecord is the decoded, human-readable form of one instruction.
type InstructionRecord struct {
	Program  string   `json:"program"`        // program id (base58)
	Name     string   `json:"name"`           // instruction name, "unknown" when undecodable
	Accounts []string `json:"accounts"`       // account keys in instruction order
	Args     IRObject `json:"args,omitempty"` // decoded arguments
}

// TransactionRecord is one entry of the transaction log.
type TransactionRecord struct {
	Signature    string              `json:"signature"`
	Slot         int64               `json:"slot"`
	FeePayer     string              `json:"fee_payer"`
	Instructions []InstructionRecord `json:"instructions"`
	Status       string              `json:"status"`
	ErrorTag     string              `json:"error_tag,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Logs         []string            `json:"logs"`
	ReturnData   []byte              `json:"return_data,omitempty"`
	Raw          []byte              `json:"-"` // wire bytes of the signed transaction
}

// Succeeded reports whether the transaction committed.
func (r TransactionRecord) Succeeded() bool {
	return r.Status == StatusOK
}
