package vm

import (
	"github.com/roach88/tally/internal/ir"
)

// Compute costs charged against a transaction's budget.
const (
	// DefaultComputeLimit is the per-transaction budget.
	DefaultComputeLimit uint64 = 200_000

	// InstructionCost is charged once when the program is dispatched.
	InstructionCost uint64 = 150

	// LogCost is charged per trace line.
	LogCost uint64 = 100

	// AccountReadCost is charged each time a handler loads an account.
	AccountReadCost uint64 = 50

	// AllocationCost is charged per allocation, plus one unit per byte.
	AllocationCost uint64 = 1_000
)

// Meter enforces the compute budget of one transaction.
//
// Each transaction gets its own Meter. Once exhausted the meter stays
// exhausted: Err keeps returning the failure so the runtime can abort the
// call even if a handler ignored a Consume error (Log never returns one).
type Meter struct {
	limit uint64
	used  uint64
	err   error
}

// NewMeter creates a meter with the given budget.
func NewMeter(limit uint64) *Meter {
	return &Meter{limit: limit}
}

// Consume charges units against the budget.
// Returns a ComputeBudgetExceeded ProgramError once the budget is exceeded.
func (m *Meter) Consume(units uint64) error {
	if m.err != nil {
		return m.err
	}
	remaining := m.limit - m.used
	if units > remaining {
		m.err = ir.NewError(ir.ErrComputeBudgetExceeded,
			"needed %d units, %d of %d remaining", units, remaining, m.limit)
		m.used = m.limit
		return m.err
	}
	m.used += units
	return nil
}

// Err returns the exhaustion error, or nil while budget remains.
func (m *Meter) Err() error {
	return m.err
}

// Used returns the units consumed so far.
func (m *Meter) Used() uint64 {
	return m.used
}

// Limit returns the budget.
func (m *Meter) Limit() uint64 {
	return m.limit
}

// Remaining returns the units still available.
func (m *Meter) Remaining() uint64 {
	return m.limit - m.used
}
