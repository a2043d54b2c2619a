package ir

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// MaxAccounts bounds the account list of one instruction.
const MaxAccounts = 255

// AccountMeta references one account from an instruction together with
// the access the instruction requests on it.
type AccountMeta struct {
	Pubkey     Pubkey `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Instruction is a single call into a program.
type Instruction struct {
	ProgramID Pubkey        `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

// Message is the signed part of a transaction. Nonce distinguishes
// otherwise identical calls; the journal rejects a repeated message.
type Message struct {
	Nonce       uint64      `json:"nonce"`
	Instruction Instruction `json:"instruction"`
}

// Signature binds a signer to the message bytes.
type Signature struct {
	Pubkey Pubkey `json:"pubkey"`
	Sig    []byte `json:"sig"`
}

// Transaction is the unit the runtime executes: one instruction, all or nothing.
type Transaction struct {
	Message    Message     `json:"message"`
	Signatures []Signature `json:"signatures"`
}

const (
	flagSigner   byte = 1 << 0
	flagWritable byte = 1 << 1
)

// Bytes returns the exact bytes signers sign:
//
//	nonce u64 LE | program id | u8 account count |
//	count x (pubkey | flags u8) | u32 LE data length | data
func (m Message) Bytes() ([]byte, error) {
	ix := m.Instruction
	if len(ix.Accounts) > MaxAccounts {
		return nil, fmt.Errorf("message has %d accounts, max %d", len(ix.Accounts), MaxAccounts)
	}

	size := 8 + PubkeySize + 1 + len(ix.Accounts)*(PubkeySize+1) + 4 + len(ix.Data)
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint64(buf, m.Nonce)
	buf = append(buf, ix.ProgramID[:]...)
	buf = append(buf, byte(len(ix.Accounts)))
	for _, meta := range ix.Accounts {
		var flags byte
		if meta.IsSigner {
			flags |= flagSigner
		}
		if meta.IsWritable {
			flags |= flagWritable
		}
		buf = append(buf, meta.Pubkey[:]...)
		buf = append(buf, flags)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ix.Data)))
	buf = append(buf, ix.Data...)
	return buf, nil
}

// Sign replaces the transaction's signatures with one per keypair.
func (tx *Transaction) Sign(keys ...Keypair) error {
	msg, err := tx.Message.Bytes()
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	tx.Signatures = make([]Signature, 0, len(keys))
	for _, k := range keys {
		tx.Signatures = append(tx.Signatures, Signature{Pubkey: k.Pubkey(), Sig: k.Sign(msg)})
	}
	return nil
}

// HexData returns the instruction data hex-encoded, for logs and the CLI.
func (ix Instruction) HexData() string {
	return hex.EncodeToString(ix.Data)
}
