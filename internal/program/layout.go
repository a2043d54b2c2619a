package program

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/roach88/tally/internal/ir"
)

// Record layout: discriminator(8) | owner(32) | payload(8, LE).
const (
	DiscriminatorSize = 8
	RecordSize        = DiscriminatorSize + ir.PubkeySize + 8

	ownerOffset   = DiscriminatorSize
	payloadOffset = ownerOffset + ir.PubkeySize
)

// RecordDiscriminator tags storage written by this program as a counter record.
var RecordDiscriminator = accountDiscriminator("CounterRecord")

// Record is the decoded form of a counter record.
type Record struct {
	Owner   ir.Pubkey
	Payload uint64
}

// Encode returns the 48-byte storage image of r.
func (r Record) Encode() []byte {
	buf := make([]byte, RecordSize)
	r.EncodeInto(buf)
	return buf
}

// EncodeInto writes r over buf, which must be RecordSize bytes.
func (r Record) EncodeInto(buf []byte) {
	copy(buf[:DiscriminatorSize], RecordDiscriminator[:])
	copy(buf[ownerOffset:payloadOffset], r.Owner[:])
	binary.LittleEndian.PutUint64(buf[payloadOffset:RecordSize], r.Payload)
}

// DecodeRecord parses storage. Anything that is not exactly a counter
// record fails with MalformedRecord.
func DecodeRecord(data []byte) (Record, error) {
	owner, err := DecodeOwner(data)
	if err != nil {
		return Record{}, err
	}
	return Record{Owner: owner, Payload: RecordPayload(data)}, nil
}

// DecodeOwner validates the record layout and returns the stored owner
// without touching the payload bytes.
func DecodeOwner(data []byte) (ir.Pubkey, error) {
	if len(data) != RecordSize {
		return ir.Pubkey{}, ir.NewError(ir.ErrMalformedRecord,
			"record is %d bytes, want %d", len(data), RecordSize)
	}
	if !bytes.Equal(data[:DiscriminatorSize], RecordDiscriminator[:]) {
		return ir.Pubkey{}, ir.NewError(ir.ErrMalformedRecord, "discriminator mismatch")
	}
	var owner ir.Pubkey
	copy(owner[:], data[ownerOffset:payloadOffset])
	return owner, nil
}

// RecordPayload reads the payload of a record DecodeOwner has accepted.
func RecordPayload(data []byte) uint64 {
	return binary.LittleEndian.Uint64(data[payloadOffset:RecordSize])
}

func accountDiscriminator(name string) [DiscriminatorSize]byte {
	return namespacedDiscriminator("account", name)
}

func namespacedDiscriminator(namespace, name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}
