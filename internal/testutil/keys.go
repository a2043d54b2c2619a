package testutil

import (
	"crypto/sha256"
	"testing"

	"github.com/roach88/tally/internal/ir"
)

// Keypair derives a stable ed25519 keypair from label. The same label
// always yields the same key, so scenarios and golden files can name
// principals ("alice", "payer") instead of carrying key material.
func Keypair(label string) ir.Keypair {
	seed := sha256.Sum256([]byte("tally/testkey/" + label))
	k, err := ir.KeypairFromSeed(seed[:])
	if err != nil {
		panic(err)
	}
	return k
}

// Pubkey is Keypair(label).Pubkey().
func Pubkey(label string) ir.Pubkey {
	return Keypair(label).Pubkey()
}

// SignedTx builds and signs a single-instruction transaction.
func SignedTx(t testing.TB, nonce uint64, ix ir.Instruction, signers ...ir.Keypair) ir.Transaction {
	t.Helper()
	tx := ir.Transaction{Message: ir.Message{Nonce: nonce, Instruction: ix}}
	if err := tx.Sign(signers...); err != nil {
		t.Fatalf("sign transaction: %v", err)
	}
	return tx
}
