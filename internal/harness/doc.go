// Package harness runs YAML scenarios against the real runtime.
//
// A scenario funds labeled wallets, executes a sequence of initialize and
// mutate transactions, and checks each outcome and the final ledger:
//
//	name: owner-only-mutation
//	description: A non-owner cannot mutate; the payload stays bit-identical.
//	accounts:
//	  alice: 10000000
//	steps:
//	  - init: {payer: alice, slot: counter, payload: 100}
//	  - mutate: {signer: mallory, record: counter, operand: 3}
//	    expect: {error: Unauthorized, payload: 100}
//	assertions:
//	  - {type: record, account: counter, owner: alice, payload: 100}
//
// Labels map to stable keypairs (see testutil.Keypair), so a scenario
// always produces the same addresses, transaction ids, and traces. Each
// run gets a fresh in-memory ledger, a deterministic clock, and counting
// correlation ids.
//
// Traces replace addresses with "<label>" and can be compared against
// golden files with RunWithGolden or, from the CLI, tally test.
package harness
