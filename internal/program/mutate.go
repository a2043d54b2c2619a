package program

import (
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/vm"
)

// mutate applies operand to an authorized record. All four results are
// traced and returned; only the quotient is written back.
func (c *Counter) mutate(ctx *vm.Context, operand uint32) (ir.IRObject, error) {
	var access mutateAccess
	if err := runGuards(ctx, &access, mutateGate); err != nil {
		return nil, err
	}

	p := RecordPayload(access.record.Data)
	out := Compute(p, operand)

	ctx.Log("Var payload: %d", p)
	ctx.Log("Add: %d + %d * 2 = %d", p, out.Operand, out.Add)
	ctx.Log("Sub: %d - %d = %d", p, out.Operand, out.Sub)
	ctx.Log("Mul: %d * %d = %d", p, out.Operand, out.Mul)
	if out.DivSkipped {
		ctx.Log("Div skipped: operand is zero, payload retained")
	} else {
		ctx.Log("Div: %d / %d = %d", p, out.Operand, out.Div)
	}

	updated := Record{Owner: access.owner, Payload: out.Div}
	updated.EncodeInto(access.record.Data)

	return ir.IRObject{
		"payload_before": ir.NewUint(out.Before),
		"operand":        ir.NewUint(out.Operand),
		"add":            ir.NewUint(out.Add),
		"sub":            ir.NewUint(out.Sub),
		"mul":            ir.NewUint(out.Mul),
		"div":            ir.NewUint(out.Div),
		"div_skipped":    ir.IRBool(out.DivSkipped),
		"payload":        ir.NewUint(updated.Payload),
	}, nil
}
