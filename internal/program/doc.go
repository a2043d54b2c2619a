// Package program implements the owned-counter program.
//
// A counter record is 48 bytes: an 8-byte type discriminator, the 32-byte
// owner key, and a little-endian u64 payload. The program has two handlers:
//
//   - initialize(u64): allocates a record at a fresh slot, paid for by a
//     signing payer, and stamps the signing owner into it
//   - mutate(u32): behind an ordered guard chain (well-formed, signed,
//     exists, program-owned, layout, owner match), computes saturating
//     add/sub/mul/div of the payload and operand and stores the quotient
//
// The program holds no state of its own. Everything it reads or writes
// goes through the vm.Context of the current call.
package program
