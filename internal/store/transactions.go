package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/feeledger/internal/ir"
)

// ErrTransactionNotFound is returned when no transaction has a signature.
var ErrTransactionNotFound = errors.New("transaction not found")

// InsertTransaction appends a record to the transaction log.
// A second insert with the same signature is an error.
func (s *Store) InsertTransaction(ctx context.Context, rec ir.TransactionRecord) error {
	return insertTransaction(ctx, s.db, rec)
}

// InsertTransaction appends a record inside the unit of work, so that a
// committed transaction and its log entry land together.
func (t *Tx) InsertTransaction(ctx context.Context, rec ir.TransactionRecord) error {
	return insertTransaction(ctx, t.tx, rec)
}

// HasTransaction reports whether a signature is already in the log.
func (s *Store) HasTransaction(ctx context.Context, signature string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions WHERE signature = ?
	`, signature).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has transaction: %w", err)
	}
	return n > 0, nil
}

// LastSlot returns the highest slot in the log, or 0 for an empty log.
func (s *Store) LastSlot(ctx context.Context) (int64, error) {
	var slot int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(slot), 0) FROM transactions
	`).Scan(&slot)
	if err != nil {
		return 0, fmt.Errorf("last slot: %w", err)
	}
	return slot, nil
}

// GetTransaction reads one transaction by signature.
func (s *Store) GetTransaction(ctx context.Context, signature string) (ir.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectTransactions+`
		WHERE signature = ?
	`, signature)
	if err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("query transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ir.TransactionRecord{}, fmt.Errorf("query transaction: %w", err)
		}
		return ir.TransactionRecord{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, signature)
	}
	return scanTransaction(rows)
}

// ReadTransactions returns the whole log in submission order.
//
// Returns an empty slice (not nil) if the log is empty.
func (s *Store) ReadTransactions(ctx context.Context) ([]ir.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectTransactions+`
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	records := []ir.TransactionRecord{}
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return records, nil
}

const selectTransactions = `
	SELECT signature, slot, fee_payer, instructions, status,
	       error_tag, error_message, logs, return_data, raw
	FROM transactions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (ir.TransactionRecord, error) {
	var rec ir.TransactionRecord
	var instructionsJSON, logsJSON string
	err := row.Scan(
		&rec.Signature,
		&rec.Slot,
		&rec.FeePayer,
		&instructionsJSON,
		&rec.Status,
		&rec.ErrorTag,
		&rec.ErrorMessage,
		&logsJSON,
		&rec.ReturnData,
		&rec.Raw,
	)
	if err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("scan transaction: %w", err)
	}

	rec.Instructions, err = unmarshalInstructions([]byte(instructionsJSON))
	if err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("transaction %s: %w", rec.Signature, err)
	}
	if err := json.Unmarshal([]byte(logsJSON), &rec.Logs); err != nil {
		return ir.TransactionRecord{}, fmt.Errorf("transaction %s: unmarshal logs: %w", rec.Signature, err)
	}
	if rec.Logs == nil {
		rec.Logs = []string{}
	}
	return rec, nil
}

func insertTransaction(ctx context.Context, q querier, rec ir.TransactionRecord) error {
	instructionsJSON, err := marshalInstructions(rec.Instructions)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	logs := rec.Logs
	if logs == nil {
		logs = []string{}
	}
	logsJSON, err := ir.MarshalCanonical(logs)
	if err != nil {
		return fmt.Errorf("insert transaction: marshal logs: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO transactions
		(signature, slot, fee_payer, instructions, status, error_tag, error_message, logs, return_data, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Signature,
		rec.Slot,
		rec.FeePayer,
		string(instructionsJSON),
		rec.Status,
		rec.ErrorTag,
		rec.ErrorMessage,
		string(logsJSON),
		rec.ReturnData,
		rec.Raw,
	)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", rec.Signature, err)
	}
	return nil
}

// marshalInstructions encodes instruction records as canonical JSON.
func marshalInstructions(instructions []ir.InstructionRecord) ([]byte, error) {
	list := make([]any, 0, len(instructions))
	for _, inst := range instructions {
		accounts := make([]any, 0, len(inst.Accounts))
		for _, a := range inst.Accounts {
			accounts = append(accounts, a)
		}
		args := inst.Args
		if args == nil {
			args = ir.IRObject{}
		}
		list = append(list, map[string]any{
			"program":  inst.Program,
			"name":     inst.Name,
			"accounts": accounts,
			"args":     args,
		})
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return nil, fmt.Errorf("marshal instructions: %w", err)
	}
	return data, nil
}

func unmarshalInstructions(data []byte) ([]ir.InstructionRecord, error) {
	var raw []struct {
		Program  string          `json:"program"`
		Name     string          `json:"name"`
		Accounts []string        `json:"accounts"`
		Args     json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal instructions: %w", err)
	}

	out := make([]ir.InstructionRecord, 0, len(raw))
	for i, r := range raw {
		args, err := ir.ParseObject(r.Args)
		if err != nil {
			return nil, fmt.Errorf("unmarshal instruction %d args: %w", i, err)
		}
		accounts := r.Accounts
		if accounts == nil {
			accounts = []string{}
		}
		out = append(out, ir.InstructionRecord{
			Program:  r.Program,
			Name:     r.Name,
			Accounts: accounts,
			Args:     args,
		})
	}
	return out, nil
}
