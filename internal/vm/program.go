package vm

import "github.com/roach88/tally/internal/ir"

// Outcome is what a program reports about a call, successful or not.
type Outcome struct {
	// Handler names the entry point that ran ("" if the data was undecodable).
	Handler string

	// Result is journaled on the receipt. It is advisory output only;
	// account state is whatever the handler wrote.
	Result ir.IRObject
}

// Program is a deployed program the runtime can dispatch to.
//
// Process must return *ir.ProgramError for every failure it detects. Any
// other error is treated as a host fault and is not journaled.
type Program interface {
	ID() ir.Pubkey
	Process(ctx *Context, data []byte) (Outcome, error)
}
