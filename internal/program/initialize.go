package program

import (
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/vm"
)

// initialize creates a record at the slot, paid for by the payer and
// stamped with the owner. The owner is written once here and never again.
func (c *Counter) initialize(ctx *vm.Context, initialPayload uint64) (ir.IRObject, error) {
	var access initializeAccess
	if err := runGuards(ctx, &access, initializeGate); err != nil {
		return nil, err
	}

	acct, err := ctx.Allocate(access.slot.Address, RecordSize, access.payer.Address)
	if err != nil {
		return nil, err
	}

	rec := Record{Owner: access.owner.Address, Payload: initialPayload}
	rec.EncodeInto(acct.Data)

	ctx.Log("Invoke from: %s", ctx.ProgramID())
	ctx.Log("New account: %s", acct.Address)
	ctx.Log("Changed data to: %d", initialPayload)

	return ir.IRObject{
		"owner":    ir.IRString(rec.Owner.String()),
		"payload":  ir.NewUint(rec.Payload),
		"lamports": ir.NewUint(acct.Lamports),
	}, nil
}
