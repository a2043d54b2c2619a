package vm

import (
	"fmt"

	"github.com/roach88/tally/internal/ir"
)

// Account is one entry of a call's working set: a private copy of the
// ledger account plus the access the instruction was granted on it.
//
// Handlers mutate Data and Lamports in place. Nothing reaches the ledger
// unless the whole call succeeds.
type Account struct {
	ir.Account

	// IsSigner is true only when a verified signature covers this key.
	IsSigner bool

	// IsWritable is the access requested by the instruction.
	IsWritable bool
}

// Allocator creates program-owned storage funded by a payer.
type Allocator interface {
	Allocate(slot ir.Pubkey, size int, payer ir.Pubkey) (*Account, error)
}

// Context is everything a program sees during one call.
//
// A Context is created per transaction and never reused; there is no
// state carried from one call to the next.
type Context struct {
	programID ir.Pubkey
	accounts  []*Account
	rent      Rent
	meter     *Meter
	logs      []string
}

// NewContext builds a context over accounts, in instruction order.
// Entries referring to the same key must share one *Account.
func NewContext(programID ir.Pubkey, accounts []*Account, rent Rent, meter *Meter) *Context {
	return &Context{
		programID: programID,
		accounts:  accounts,
		rent:      rent,
		meter:     meter,
	}
}

// ProgramID returns the identity of the executing program.
func (c *Context) ProgramID() ir.Pubkey {
	return c.programID
}

// NumAccounts returns the length of the instruction's account list.
func (c *Context) NumAccounts() int {
	return len(c.accounts)
}

// Account returns the i-th referenced account and charges AccountReadCost.
func (c *Context) Account(i int) (*Account, error) {
	if i < 0 || i >= len(c.accounts) {
		return nil, ir.NewError(ir.ErrInvalidInstruction,
			"account index %d out of range (%d referenced)", i, len(c.accounts))
	}
	if err := c.meter.Consume(AccountReadCost); err != nil {
		return nil, err
	}
	return c.accounts[i], nil
}

// IsSigner reports whether pk signed the current transaction.
func (c *Context) IsSigner(pk ir.Pubkey) bool {
	for _, a := range c.accounts {
		if a.Address == pk && a.IsSigner {
			return true
		}
	}
	return false
}

// Log appends a trace line to the receipt and charges LogCost.
// Exhaustion is recorded on the meter and fails the call afterwards.
func (c *Context) Log(format string, args ...any) {
	_ = c.meter.Consume(LogCost)
	c.logs = append(c.logs, fmt.Sprintf(format, args...))
}

// Logs returns the trace lines written so far.
func (c *Context) Logs() []string {
	return c.logs
}

// Consume charges units against the compute budget.
func (c *Context) Consume(units uint64) error {
	return c.meter.Consume(units)
}

// Rent returns the rent parameters in force.
func (c *Context) Rent() Rent {
	return c.rent
}

// Allocate creates size bytes of storage at slot, owned by the executing
// program and funded from payer with the rent-exempt minimum.
//
// Checks, in order:
//   - slot and payer are referenced, distinct, and writable (InvalidInstruction)
//   - payer signed (MissingSignature)
//   - slot is empty (AlreadyInitialized)
//   - payer holds the minimum balance (InsufficientFunds)
func (c *Context) Allocate(slot ir.Pubkey, size int, payer ir.Pubkey) (*Account, error) {
	if size < 0 {
		return nil, ir.NewError(ir.ErrInvalidInstruction, "negative allocation size %d", size)
	}
	if slot == payer {
		return nil, ir.NewError(ir.ErrInvalidInstruction, "payer %s cannot fund its own allocation", payer)
	}

	slotAcct := c.lookup(slot)
	if slotAcct == nil {
		return nil, ir.NewError(ir.ErrInvalidInstruction, "slot %s not referenced by instruction", slot)
	}
	payerAcct := c.lookup(payer)
	if payerAcct == nil {
		return nil, ir.NewError(ir.ErrInvalidInstruction, "payer %s not referenced by instruction", payer)
	}
	if !slotAcct.IsWritable {
		return nil, ir.NewError(ir.ErrInvalidInstruction, "slot %s is not writable", slot)
	}
	if !payerAcct.IsWritable {
		return nil, ir.NewError(ir.ErrInvalidInstruction, "payer %s is not writable", payer)
	}
	if !payerAcct.IsSigner {
		return nil, ir.NewError(ir.ErrMissingSignature, "payer %s did not sign", payer)
	}
	if slotAcct.Exists() {
		return nil, ir.NewError(ir.ErrAlreadyInitialized, "slot %s already holds an account", slot)
	}

	need := c.rent.MinimumBalance(size)
	if payerAcct.Lamports < need {
		return nil, ir.NewError(ir.ErrInsufficientFunds,
			"payer %s has %d lamports, allocation needs %d", payer, payerAcct.Lamports, need)
	}

	if err := c.meter.Consume(AllocationCost + uint64(size)); err != nil {
		return nil, err
	}

	payerAcct.Lamports -= need
	slotAcct.Lamports = need
	slotAcct.Owner = c.programID
	slotAcct.Data = make([]byte, size)
	return slotAcct, nil
}

func (c *Context) lookup(pk ir.Pubkey) *Account {
	for _, a := range c.accounts {
		if a.Address == pk {
			return a
		}
	}
	return nil
}
