// Package ir holds the value and record types shared by the ledger packages.
//
// ir imports nothing internal. Instruction arguments are carried as IRValue
// trees so they can be logged, stored and compared without reflection, and
// serialized with MarshalCanonical (RFC 8785) wherever bytes must be stable:
// the transaction log, golden traces and derived hashes.
//
// Constraints:
//   - no floats; token amounts are IRUint, everything else integral is IRInt
//   - JSON tags use snake_case
//   - ordering uses slots (logical clock), never wall-clock time
package ir
