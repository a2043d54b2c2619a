package vm

import "math/bits"

// Rent prices storage. An allocation must be funded with MinimumBalance
// lamports, which makes the account exempt for its whole life.
type Rent struct {
	LamportsPerByteYear uint64 `json:"lamports_per_byte_year"`
	ExemptionYears      uint64 `json:"exemption_years"`
	// AccountOverhead is charged per account on top of its data size.
	AccountOverhead uint64 `json:"account_overhead"`
}

// DefaultRent returns the standard rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: 3480,
		ExemptionYears:      2,
		AccountOverhead:     128,
	}
}

// MinimumBalance returns the lamports needed to keep size bytes exempt.
// Saturates at MaxUint64 so absurd parameters fail as InsufficientFunds
// rather than wrapping to a small price.
func (r Rent) MinimumBalance(size int) uint64 {
	bytes, carry := bits.Add64(r.AccountOverhead, uint64(size), 0)
	if carry != 0 {
		return ^uint64(0)
	}
	hi, perByte := bits.Mul64(bytes, r.LamportsPerByteYear)
	if hi != 0 {
		return ^uint64(0)
	}
	hi, total := bits.Mul64(perByte, r.ExemptionYears)
	if hi != 0 {
		return ^uint64(0)
	}
	return total
}
