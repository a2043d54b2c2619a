// Package ir provides the canonical types shared by every tally package:
// identities, transactions, receipts, ledger accounts, and typed errors.
//
// This package contains type definitions and pure encoding only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - results hash identically on every host
//   - Logical clocks (seq) only, never wall-clock timestamps
//   - Identities are 32-byte ed25519 public keys, base58 in text
//   - All JSON tags use snake_case
package ir
