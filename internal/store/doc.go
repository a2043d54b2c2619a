// Package store provides SQLite-backed durable storage for the tally ledger.
//
// The store holds two things:
//   - Accounts: current state of every address (owner, lamports, data)
//   - Receipts: append-only journal of every executed transaction,
//     successful or failed, indexed by referenced account
//
// # Critical Patterns
//
// Atomic Commit:
//   - Commit writes a transaction's changed accounts and its receipt in
//     one SQLite transaction
//   - Failed transactions journal a receipt and no account rows
//
// Logical Time:
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - seq is UNIQUE across receipts
//
// Deterministic Query Results:
//   - Journal queries use ORDER BY seq ASC, id COLLATE BINARY ASC
//   - Account listings use ORDER BY address COLLATE BINARY ASC
//
// Replay Protection:
//   - receipts.id is the content-addressed transaction id (PRIMARY KEY)
//   - A second insert of the same id fails
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: receipt_accounts references receipts
package store
