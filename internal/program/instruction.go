package program

import (
	"bytes"
	"encoding/binary"

	"github.com/roach88/tally/internal/ir"
)

// Handler names, as journaled on receipts.
const (
	HandlerInitialize = "initialize"
	HandlerMutate     = "mutate"
)

var (
	initializeDiscriminator = namespacedDiscriminator("global", HandlerInitialize)
	mutateDiscriminator     = namespacedDiscriminator("global", HandlerMutate)
)

// Call is a decoded instruction.
type Call struct {
	Handler        string
	InitialPayload uint64 // initialize
	Operand        uint32 // mutate
}

// DecodeCall parses instruction data: an 8-byte handler discriminator
// followed by little-endian arguments. When the discriminator is known but
// the arguments are not, the returned Call still names the handler.
func DecodeCall(data []byte) (Call, error) {
	if len(data) < DiscriminatorSize {
		return Call{}, ir.NewError(ir.ErrInvalidInstruction,
			"instruction data is %d bytes, need at least %d", len(data), DiscriminatorSize)
	}
	disc, args := data[:DiscriminatorSize], data[DiscriminatorSize:]

	switch {
	case bytes.Equal(disc, initializeDiscriminator[:]):
		c := Call{Handler: HandlerInitialize}
		if len(args) != 8 {
			return c, ir.NewError(ir.ErrInvalidInstruction, "initialize takes 8 argument bytes, got %d", len(args))
		}
		c.InitialPayload = binary.LittleEndian.Uint64(args)
		return c, nil

	case bytes.Equal(disc, mutateDiscriminator[:]):
		c := Call{Handler: HandlerMutate}
		if len(args) != 4 {
			return c, ir.NewError(ir.ErrInvalidInstruction, "mutate takes 4 argument bytes, got %d", len(args))
		}
		c.Operand = binary.LittleEndian.Uint32(args)
		return c, nil

	default:
		return Call{}, ir.NewError(ir.ErrInvalidInstruction, "unknown handler discriminator %x", disc)
	}
}

// NewInitializeInstruction builds a call creating a record at slot, funded
// by payer and owned by owner.
func NewInitializeInstruction(programID, slot, payer, owner ir.Pubkey, initialPayload uint64) ir.Instruction {
	data := make([]byte, 0, DiscriminatorSize+8)
	data = append(data, initializeDiscriminator[:]...)
	data = binary.LittleEndian.AppendUint64(data, initialPayload)
	return ir.Instruction{
		ProgramID: programID,
		Accounts: []ir.AccountMeta{
			{Pubkey: slot, IsWritable: true},
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: owner, IsSigner: true},
		},
		Data: data,
	}
}

// NewMutateInstruction builds a call applying operand to the record,
// authorized by signer.
func NewMutateInstruction(programID, record, signer ir.Pubkey, operand uint32) ir.Instruction {
	data := make([]byte, 0, DiscriminatorSize+4)
	data = append(data, mutateDiscriminator[:]...)
	data = binary.LittleEndian.AppendUint32(data, operand)
	return ir.Instruction{
		ProgramID: programID,
		Accounts: []ir.AccountMeta{
			{Pubkey: record, IsWritable: true},
			{Pubkey: signer, IsSigner: true},
		},
		Data: data,
	}
}
