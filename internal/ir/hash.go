package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTransaction = "tally/transaction/v1"
	DomainResult      = "tally/result/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransactionID computes the content-addressed id of a transaction.
//
// Signatures are excluded: the id names "what was asked", not "who signed".
// The journal's UNIQUE(id) rejects a replayed message.
func TransactionID(m Message) (string, error) {
	msg, err := m.Bytes()
	if err != nil {
		return "", fmt.Errorf("TransactionID: %w", err)
	}
	return hashWithDomain(DomainTransaction, msg), nil
}

// MustTransactionID is like TransactionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTransactionID(m Message) string {
	id, err := TransactionID(m)
	if err != nil {
		panic(err)
	}
	return id
}

// ResultHash hashes a receipt result for golden comparison and audit.
func ResultHash(result IRObject) (string, error) {
	canonical, err := MarshalCanonical(result)
	if err != nil {
		return "", fmt.Errorf("ResultHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}
