package program

import (
	"math"
	"math/bits"
)

// Saturating arithmetic on payloads. Results clamp to [0, MaxUint64].

func satAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func satMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// MutateOutcome holds every intermediate of one mutation. Only Div is
// persisted.
type MutateOutcome struct {
	Before     uint64
	Operand    uint64
	Add        uint64 // Before + Operand*2
	Sub        uint64 // Before - Operand
	Mul        uint64 // Before * Operand
	Div        uint64 // Before / Operand, or Before when Operand is zero
	DivSkipped bool
}

// Compute evaluates the four operations on payload and operand.
func Compute(payload uint64, operand uint32) MutateOutcome {
	o := uint64(operand)
	out := MutateOutcome{
		Before:  payload,
		Operand: o,
		Add:     satAdd(payload, satMul(o, 2)),
		Sub:     satSub(payload, o),
		Mul:     satMul(payload, o),
	}
	if o == 0 {
		out.Div = payload
		out.DivSkipped = true
	} else {
		out.Div = payload / o
	}
	return out
}
