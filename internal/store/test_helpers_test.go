package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/feeledger/internal/ir"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a transaction record with minimal required fields.
func createTestRecord(signature string, slot int64, status string) ir.TransactionRecord {
	return ir.TransactionRecord{
		Signature: signature,
		Slot:      slot,
		FeePayer:  "11111111111111111111111111111111",
		Instructions: []ir.InstructionRecord{{
			Program:  "AH3gT3xA632W86HaGKkuj9995aef3RNrd1jKgBp5NZej",
			Name:     "payment",
			Accounts: []string{"a", "b"},
			Args:     ir.IRObject{"amount": ir.IRUint(10000)},
		}},
		Status: status,
		Logs:   []string{"Program log: fee=100 net=9900"},
		Raw:    []byte{0x01, 0x02},
	}
}
