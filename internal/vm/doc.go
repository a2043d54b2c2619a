// Package vm is the host that executes tally programs.
//
// The runtime receives signed transactions, verifies signatures, loads
// the referenced accounts into a private working set, and dispatches to
// the program named by the instruction. Programs see only a Context:
// their program id, the referenced accounts with signer/writable flags,
// an Allocator for new storage, and a compute Meter.
//
// ARCHITECTURE:
//
// Single-Writer Execution:
// Execute holds one lock for the whole call. There is no internal
// parallelism, no suspension point, and no state carried between calls.
//
// Transaction Flow:
//  1. Content-address the message (ir.TransactionID); reject replays
//  2. Stamp seq from the logical Clock
//  3. Verify ed25519 signatures (MissingSignature on any gap)
//  4. Load accounts into a working set of copies
//  5. Charge InstructionCost, run the program
//  6. Check invariants (lamports conserved, read-only untouched,
//     only program-owned data changed, no resize)
//  7. Commit dirty accounts + receipt atomically, or journal a
//     failed receipt and drop the working set
//
// Atomicity comes from the working set: nothing a handler writes is
// visible outside the call until step 7 succeeds.
package vm
