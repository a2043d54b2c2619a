package program

import (
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/vm"
)

// DefaultProgramID is the counter's id when none is configured.
var DefaultProgramID = ir.PubkeyFromSeed("tally/counter")

// Counter is the owned-counter program.
type Counter struct {
	id ir.Pubkey
}

var _ vm.Program = (*Counter)(nil)

// New returns the counter program deployed at id.
func New(id ir.Pubkey) *Counter {
	return &Counter{id: id}
}

// ID implements vm.Program.
func (c *Counter) ID() ir.Pubkey {
	return c.id
}

// Process implements vm.Program.
func (c *Counter) Process(ctx *vm.Context, data []byte) (vm.Outcome, error) {
	call, err := DecodeCall(data)
	outcome := vm.Outcome{Handler: call.Handler}
	if err != nil {
		return outcome, err
	}

	switch call.Handler {
	case HandlerInitialize:
		outcome.Result, err = c.initialize(ctx, call.InitialPayload)
	case HandlerMutate:
		outcome.Result, err = c.mutate(ctx, call.Operand)
	}
	return outcome, err
}
