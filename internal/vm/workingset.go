package vm

import (
	"bytes"

	"github.com/roach88/tally/internal/ir"
)

// workingSet is the private copy of every account a call references.
// Handlers only ever touch these copies; the runtime commits them on
// success and drops them on failure.
type workingSet struct {
	ordered []*Account             // one entry per AccountMeta, duplicates share a pointer
	unique  []*Account             // first-reference order
	before  map[ir.Pubkey]ir.Account // snapshot for post-execution checks
}

func newWorkingSet(metas []ir.AccountMeta, loaded map[ir.Pubkey]ir.Account, verified map[ir.Pubkey]bool) *workingSet {
	ws := &workingSet{before: make(map[ir.Pubkey]ir.Account, len(metas))}
	byKey := make(map[ir.Pubkey]*Account, len(metas))

	for _, meta := range metas {
		acct, ok := byKey[meta.Pubkey]
		if !ok {
			stored, found := loaded[meta.Pubkey]
			if !found {
				stored = ir.Account{Address: meta.Pubkey, Owner: ir.SystemID}
			}
			ws.before[meta.Pubkey] = stored.Clone()
			acct = &Account{Account: stored.Clone()}
			byKey[meta.Pubkey] = acct
			ws.unique = append(ws.unique, acct)
		}
		// Access merges across duplicate references.
		acct.IsSigner = acct.IsSigner || (meta.IsSigner && verified[meta.Pubkey])
		acct.IsWritable = acct.IsWritable || meta.IsWritable
		ws.ordered = append(ws.ordered, acct)
	}
	return ws
}

// checkInvariants enforces what no program may do, whatever it returned:
//   - lamports are neither created nor destroyed
//   - read-only accounts are unchanged
//   - only accounts owned by the executing program change data, except
//     a fresh allocation that hands an empty slot to the program
func (ws *workingSet) checkInvariants(programID ir.Pubkey) error {
	var sumBefore, sumAfter uint64
	for _, acct := range ws.unique {
		prev := ws.before[acct.Address]
		sumBefore += prev.Lamports
		sumAfter += acct.Lamports

		changed := prev.Lamports != acct.Lamports ||
			prev.Owner != acct.Owner ||
			!bytes.Equal(prev.Data, acct.Data)
		if changed && !acct.IsWritable {
			return ir.NewError(ir.ErrInvariantViolation, "read-only account %s was modified", acct.Address)
		}

		if prev.Owner != acct.Owner {
			if prev.Exists() || acct.Owner != programID {
				return ir.NewError(ir.ErrInvariantViolation, "illegal owner change on %s", acct.Address)
			}
		}

		if !bytes.Equal(prev.Data, acct.Data) && acct.Owner != programID {
			return ir.NewError(ir.ErrInvariantViolation, "data of %s changed by non-owner program", acct.Address)
		}
		if prev.Exists() && len(prev.Data) != len(acct.Data) {
			return ir.NewError(ir.ErrInvariantViolation, "account %s resized from %d to %d bytes",
				acct.Address, len(prev.Data), len(acct.Data))
		}
	}

	if sumBefore != sumAfter {
		return ir.NewError(ir.ErrInvariantViolation, "lamports not conserved: %d before, %d after", sumBefore, sumAfter)
	}
	return nil
}

// dirty returns the writable accounts whose state differs from the ledger.
func (ws *workingSet) dirty(seq int64) []ir.Account {
	var out []ir.Account
	for _, acct := range ws.unique {
		prev := ws.before[acct.Address]
		if prev.Lamports == acct.Lamports && prev.Owner == acct.Owner && bytes.Equal(prev.Data, acct.Data) {
			continue
		}
		a := acct.Account.Clone()
		a.UpdatedSeq = seq
		out = append(out, a)
	}
	return out
}
