package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(nonce uint64) Message {
	return Message{
		Nonce: nonce,
		Instruction: Instruction{
			ProgramID: PubkeyFromSeed("program"),
			Accounts: []AccountMeta{
				{Pubkey: PubkeyFromSeed("record"), IsWritable: true},
				{Pubkey: PubkeyFromSeed("owner"), IsSigner: true},
			},
			Data: []byte{1, 2, 3},
		},
	}
}

func TestTransactionIDDeterminism(t *testing.T) {
	id1, err := TransactionID(testMessage(1))
	require.NoError(t, err)
	id2, err := TransactionID(testMessage(1))
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "TransactionID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestTransactionIDChangesWithInput(t *testing.T) {
	base := MustTransactionID(testMessage(1))

	otherNonce := MustTransactionID(testMessage(2))

	otherData := testMessage(1)
	otherData.Instruction.Data = []byte{1, 2, 4}

	otherFlags := testMessage(1)
	otherFlags.Instruction.Accounts[1].IsSigner = false

	assert.NotEqual(t, base, otherNonce)
	assert.NotEqual(t, base, MustTransactionID(otherData))
	assert.NotEqual(t, base, MustTransactionID(otherFlags))
}

func TestTransactionIDDomainSeparation(t *testing.T) {
	msg, err := testMessage(1).Bytes()
	require.NoError(t, err)

	assert.NotEqual(t, hashWithDomain(DomainResult, msg), MustTransactionID(testMessage(1)))
}

func TestResultHash(t *testing.T) {
	h1, err := ResultHash(IRObject{"div": IRInt(14), "add": IRInt(114)})
	require.NoError(t, err)
	h2, err := ResultHash(IRObject{"add": IRInt(114), "div": IRInt(14)})
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "key order must not affect the hash")

	_, err = ResultHash(IRObject{"bad": nil})
	assert.Error(t, err)
}
