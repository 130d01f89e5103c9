// Package engine implements the in-process ledger runtime.
//
// The engine accepts signed transactions, checks them, runs their
// instructions against the account store and appends every executed
// transaction to the log.
//
// TRANSACTION LIFECYCLE:
//
//  1. sanitize: legacy message only, header counts consistent with the key
//     list, one signature per required signer, no duplicate keys, at least
//     one instruction, every index in range.
//  2. verify: every signature must match its signer over the serialized
//     message.
//  3. lock: the engine-wide mutex is taken for the rest of the lifecycle.
//  4. dedup: a signature already in the log is rejected (AlreadyProcessed).
//  5. blockhash: the recent blockhash must belong to one of the last
//     MaxRecentBlockhashes slots.
//  6. execute: the slot clock advances; instructions run in order inside
//     one store transaction.
//  7. record: on success the log entry is written in the same store
//     transaction; on failure the store transaction rolls back and a failed
//     entry is written on its own.
//
// Steps 1-5 reject without recording and without consuming a slot.
//
// ACCOUNT RULES:
//
// Programs never touch the store directly. Every write goes through
// InvokeContext, which enforces:
//   - only accounts marked writable in the message may change
//   - only the owning program may change an account's data or owner, or
//     debit its lamports
//   - an account holding data must keep at least the rent-exempt minimum
//
// BUILTIN PROGRAMS:
//
// SystemProgram (CreateAccount, Transfer) and TokenProgram (InitializeMint2,
// InitializeAccount3, Transfer, MintTo) use the standard wire formats, so
// transactions built with solana-go's program packages run unchanged.
// Additional programs are added with Engine.Register.
//
// DETERMINISM:
//
// Blockhashes are derived from the store's genesis id and the slot number,
// and the slot clock resumes from the log on restart. Two engines fed the
// same transactions produce the same log apart from genesis-dependent
// fields.
//
// ERRORS:
//
// Runtime failures are *RuntimeError values whose Code is the tag written to
// the log. A failing instruction is reported as *TransactionError carrying
// its index. Program errors carry their own tags through the TaggedError
// interface; ErrorTag extracts the tag from any error.
package engine
