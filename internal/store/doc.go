// Package store provides SQLite-backed durable storage for the ledger.
//
// The store holds two things:
//   - Accounts: address, owner program, lamports and raw data bytes
//   - Transactions: the append-only log of every submitted transaction,
//     committed or failed, with decoded instructions and program logs
//
// # Atomicity
//
// All account writes produced by one transaction go through WithTx. The
// callback runs inside a single SQLite transaction; any error rolls back
// every write made by the callback.
//
// # Ordering
//
// Transactions are read back ORDER BY seq ASC, where seq is the insertion
// order. Slots are logical and assigned by the engine, never wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Each database carries a genesis id (UUIDv7) minted on creation. Blockhashes
// are derived from it, so transactions signed against one ledger are never
// valid on another.
package store
