package program

import (
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/vm"
)

// guard is one step of an authorization chain. Steps run in order and
// the first failure aborts the call before any handler body runs.
type guard[T any] struct {
	name  string
	check func(ctx *vm.Context, s *T) error
}

func runGuards[T any](ctx *vm.Context, s *T, chain []guard[T]) error {
	for _, g := range chain {
		if err := g.check(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// mutateAccess is what the mutation gate establishes.
type mutateAccess struct {
	record *vm.Account
	signer *vm.Account
	owner  ir.Pubkey
}

// mutateGate authorizes a mutation. Nothing is cached between calls; every
// step re-reads the working set. The payload is never read here.
var mutateGate = []guard[mutateAccess]{
	{"accounts well-formed", func(ctx *vm.Context, s *mutateAccess) error {
		if ctx.NumAccounts() < 2 {
			return ir.NewError(ir.ErrInvalidInstruction,
				"mutate expects 2 accounts (record, signer), got %d", ctx.NumAccounts())
		}
		var err error
		if s.record, err = ctx.Account(0); err != nil {
			return err
		}
		if s.signer, err = ctx.Account(1); err != nil {
			return err
		}
		if !s.record.IsWritable {
			return ir.NewError(ir.ErrInvalidInstruction, "record %s is not writable", s.record.Address)
		}
		if s.record.Address == s.signer.Address {
			return ir.NewError(ir.ErrInvalidInstruction, "record %s cannot sign for itself", s.record.Address)
		}
		return nil
	}},
	{"signer signed", func(_ *vm.Context, s *mutateAccess) error {
		if !s.signer.IsSigner {
			return ir.NewError(ir.ErrMissingSignature, "signer %s did not sign", s.signer.Address)
		}
		return nil
	}},
	{"record exists", func(_ *vm.Context, s *mutateAccess) error {
		if !s.record.Exists() {
			return ir.NewError(ir.ErrNotInitialized, "record %s is not initialized", s.record.Address)
		}
		return nil
	}},
	{"record owned by program", func(ctx *vm.Context, s *mutateAccess) error {
		if s.record.Owner != ctx.ProgramID() {
			return ir.NewError(ir.ErrMalformedRecord,
				"record %s storage is owned by %s, not this program", s.record.Address, s.record.Owner)
		}
		return nil
	}},
	{"record layout", func(_ *vm.Context, s *mutateAccess) error {
		owner, err := DecodeOwner(s.record.Data)
		if err != nil {
			return err
		}
		s.owner = owner
		return nil
	}},
	{"signer is owner", func(_ *vm.Context, s *mutateAccess) error {
		if s.owner != s.signer.Address {
			return ir.NewError(ir.ErrUnauthorized,
				"signer %s is not the record owner", s.signer.Address)
		}
		return nil
	}},
}

// initializeAccess is what the initialization gate establishes.
type initializeAccess struct {
	slot  *vm.Account
	payer *vm.Account
	owner *vm.Account
}

var initializeGate = []guard[initializeAccess]{
	{"accounts well-formed", func(ctx *vm.Context, s *initializeAccess) error {
		if ctx.NumAccounts() < 3 {
			return ir.NewError(ir.ErrInvalidInstruction,
				"initialize expects 3 accounts (slot, payer, owner), got %d", ctx.NumAccounts())
		}
		var err error
		if s.slot, err = ctx.Account(0); err != nil {
			return err
		}
		if s.payer, err = ctx.Account(1); err != nil {
			return err
		}
		if s.owner, err = ctx.Account(2); err != nil {
			return err
		}
		if !s.slot.IsWritable {
			return ir.NewError(ir.ErrInvalidInstruction, "slot %s is not writable", s.slot.Address)
		}
		if !s.payer.IsWritable {
			return ir.NewError(ir.ErrInvalidInstruction, "payer %s is not writable", s.payer.Address)
		}
		if s.slot.Address == s.payer.Address || s.slot.Address == s.owner.Address {
			return ir.NewError(ir.ErrInvalidInstruction, "slot %s must differ from payer and owner", s.slot.Address)
		}
		return nil
	}},
	{"payer signed", func(_ *vm.Context, s *initializeAccess) error {
		if !s.payer.IsSigner {
			return ir.NewError(ir.ErrMissingSignature, "payer %s did not sign", s.payer.Address)
		}
		return nil
	}},
	{"owner signed", func(_ *vm.Context, s *initializeAccess) error {
		if !s.owner.IsSigner {
			return ir.NewError(ir.ErrMissingSignature, "owner %s did not sign", s.owner.Address)
		}
		return nil
	}},
	{"slot empty", func(_ *vm.Context, s *initializeAccess) error {
		if s.slot.Exists() {
			return ir.NewError(ir.ErrAlreadyInitialized, "slot %s already holds an account", s.slot.Address)
		}
		return nil
	}},
}
