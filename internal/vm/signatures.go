package vm

import (
	"github.com/roach88/tally/internal/ir"
)

// verifySignatures checks every signature against the message bytes and
// returns the set of verified signers.
//
// A signature that fails verification, or an account flagged as signer
// with no signature, fails the call with MissingSignature: an invalid
// signature is no authorization at all.
func verifySignatures(tx ir.Transaction, msg []byte) (map[ir.Pubkey]bool, error) {
	verified := make(map[ir.Pubkey]bool, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		if !ir.Verify(sig.Pubkey, msg, sig.Sig) {
			return nil, ir.NewError(ir.ErrMissingSignature, "invalid signature for %s", sig.Pubkey)
		}
		verified[sig.Pubkey] = true
	}

	for _, meta := range tx.Message.Instruction.Accounts {
		if meta.IsSigner && !verified[meta.Pubkey] {
			return nil, ir.NewError(ir.ErrMissingSignature, "account %s requires a signature", meta.Pubkey)
		}
	}
	return verified, nil
}

// sortedSigners returns the verified signers in instruction order, deduplicated.
func sortedSigners(metas []ir.AccountMeta, verified map[ir.Pubkey]bool) []ir.Pubkey {
	seen := make(map[ir.Pubkey]bool)
	signers := []ir.Pubkey{}
	for _, meta := range metas {
		if meta.IsSigner && verified[meta.Pubkey] && !seen[meta.Pubkey] {
			seen[meta.Pubkey] = true
			signers = append(signers, meta.Pubkey)
		}
	}
	return signers
}
