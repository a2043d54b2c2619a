package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/tally/internal/ir"
)

// createTestStore creates a fresh on-disk store under t.TempDir().
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReceipt creates a successful receipt referencing addrs.
func createTestReceipt(id string, seq int64, addrs ...ir.Pubkey) ir.Receipt {
	metas := make([]ir.AccountMeta, len(addrs))
	for i, a := range addrs {
		metas[i] = ir.AccountMeta{Pubkey: a, IsWritable: true}
	}
	return ir.Receipt{
		ID:            id,
		Seq:           seq,
		CorrelationID: "corr-" + id,
		Handler:       "mutate",
		ProgramID:     ir.PubkeyFromSeed("program"),
		Accounts:      metas,
		Data:          []byte{1, 2, 3},
		Signers:       []ir.Pubkey{},
		Status:        ir.StatusOK,
		Logs:          []string{"Program log: hello"},
		Result:        ir.IRObject{"payload": ir.IRInt(14)},
		ComputeUnits:  450,
	}
}
