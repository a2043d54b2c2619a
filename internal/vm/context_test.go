package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ir"
)

var (
	testProgram = ir.PubkeyFromSeed("vm/test-program")
	payerKey    = ir.PubkeyFromSeed("payer")
	slotKey     = ir.PubkeyFromSeed("slot")
)

func testAccount(addr ir.Pubkey, lamports uint64, signer, writable bool) *Account {
	return &Account{
		Account:    ir.Account{Address: addr, Owner: ir.SystemID, Lamports: lamports},
		IsSigner:   signer,
		IsWritable: writable,
	}
}

func TestContext_AccountChargesRead(t *testing.T) {
	m := NewMeter(DefaultComputeLimit)
	ctx := NewContext(testProgram, []*Account{testAccount(payerKey, 1, true, true)}, DefaultRent(), m)

	a, err := ctx.Account(0)
	require.NoError(t, err)
	assert.Equal(t, payerKey, a.Address)
	assert.Equal(t, AccountReadCost, m.Used())

	_, err = ctx.Account(1)
	assert.True(t, ir.IsKind(err, ir.ErrInvalidInstruction), "got %v", err)
	_, err = ctx.Account(-1)
	assert.True(t, ir.IsKind(err, ir.ErrInvalidInstruction), "got %v", err)
}

func TestContext_IsSigner(t *testing.T) {
	ctx := NewContext(testProgram, []*Account{
		testAccount(payerKey, 1, true, true),
		testAccount(slotKey, 0, false, true),
	}, DefaultRent(), NewMeter(DefaultComputeLimit))

	assert.True(t, ctx.IsSigner(payerKey))
	assert.False(t, ctx.IsSigner(slotKey))
	assert.False(t, ctx.IsSigner(ir.PubkeyFromSeed("stranger")))
}

func TestContext_Log(t *testing.T) {
	m := NewMeter(DefaultComputeLimit)
	ctx := NewContext(testProgram, nil, DefaultRent(), m)

	ctx.Log("Add: %d + %d * 2 = %d", 100, 7, 114)
	assert.Equal(t, []string{"Add: 100 + 7 * 2 = 114"}, ctx.Logs())
	assert.Equal(t, LogCost, m.Used())
}

func TestContext_LogExhaustionRecordedOnMeter(t *testing.T) {
	m := NewMeter(LogCost + 1)
	ctx := NewContext(testProgram, nil, DefaultRent(), m)

	ctx.Log("one")
	ctx.Log("two")
	assert.True(t, ir.IsKind(m.Err(), ir.ErrComputeBudgetExceeded))
}

func TestContext_Allocate(t *testing.T) {
	payer := testAccount(payerKey, 2_000_000, true, true)
	slot := testAccount(slotKey, 0, false, true)
	m := NewMeter(DefaultComputeLimit)
	ctx := NewContext(testProgram, []*Account{slot, payer}, DefaultRent(), m)

	got, err := ctx.Allocate(slotKey, 48, payerKey)
	require.NoError(t, err)
	assert.Same(t, slot, got)

	need := DefaultRent().MinimumBalance(48)
	assert.Equal(t, need, slot.Lamports)
	assert.Equal(t, 2_000_000-need, payer.Lamports)
	assert.Equal(t, testProgram, slot.Owner)
	assert.Equal(t, make([]byte, 48), slot.Data)
	assert.Equal(t, AllocationCost+48, m.Used())
}

func TestContext_AllocateErrors(t *testing.T) {
	tests := []struct {
		name     string
		slot     *Account
		payer    *Account
		slotKey  ir.Pubkey
		payerKey ir.Pubkey
		size     int
		want     ir.ErrorKind
	}{
		{
			name: "negative size",
			slot: testAccount(slotKey, 0, false, true), payer: testAccount(payerKey, 2_000_000, true, true),
			slotKey: slotKey, payerKey: payerKey, size: -1,
			want: ir.ErrInvalidInstruction,
		},
		{
			name: "slot is payer",
			slot: testAccount(slotKey, 0, false, true), payer: testAccount(payerKey, 2_000_000, true, true),
			slotKey: payerKey, payerKey: payerKey, size: 48,
			want: ir.ErrInvalidInstruction,
		},
		{
			name: "slot not referenced",
			slot: testAccount(slotKey, 0, false, true), payer: testAccount(payerKey, 2_000_000, true, true),
			slotKey: ir.PubkeyFromSeed("elsewhere"), payerKey: payerKey, size: 48,
			want: ir.ErrInvalidInstruction,
		},
		{
			name: "read-only slot",
			slot: testAccount(slotKey, 0, false, false), payer: testAccount(payerKey, 2_000_000, true, true),
			slotKey: slotKey, payerKey: payerKey, size: 48,
			want: ir.ErrInvalidInstruction,
		},
		{
			name: "read-only payer",
			slot: testAccount(slotKey, 0, false, true), payer: testAccount(payerKey, 2_000_000, true, false),
			slotKey: slotKey, payerKey: payerKey, size: 48,
			want: ir.ErrInvalidInstruction,
		},
		{
			name: "payer unsigned",
			slot: testAccount(slotKey, 0, false, true), payer: testAccount(payerKey, 2_000_000, false, true),
			slotKey: slotKey, payerKey: payerKey, size: 48,
			want: ir.ErrMissingSignature,
		},
		{
			name: "slot occupied",
			slot: testAccount(slotKey, 1, false, true), payer: testAccount(payerKey, 2_000_000, true, true),
			slotKey: slotKey, payerKey: payerKey, size: 48,
			want: ir.ErrAlreadyInitialized,
		},
		{
			name: "payer short",
			slot: testAccount(slotKey, 0, false, true), payer: testAccount(payerKey, 1_224_959, true, true),
			slotKey: slotKey, payerKey: payerKey, size: 48,
			want: ir.ErrInsufficientFunds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payerBefore := tt.payer.Lamports
			ctx := NewContext(testProgram, []*Account{tt.slot, tt.payer}, DefaultRent(), NewMeter(DefaultComputeLimit))

			_, err := ctx.Allocate(tt.slotKey, tt.size, tt.payerKey)
			assert.True(t, ir.IsKind(err, tt.want), "got %v, want %s", err, tt.want)
			assert.Equal(t, payerBefore, tt.payer.Lamports, "payer must not be debited on failure")
		})
	}
}

func TestContext_AllocateBudgetExceeded(t *testing.T) {
	payer := testAccount(payerKey, 2_000_000, true, true)
	slot := testAccount(slotKey, 0, false, true)
	ctx := NewContext(testProgram, []*Account{slot, payer}, DefaultRent(), NewMeter(AllocationCost))

	_, err := ctx.Allocate(slotKey, 48, payerKey)
	assert.True(t, ir.IsKind(err, ir.ErrComputeBudgetExceeded), "got %v", err)
	assert.Equal(t, uint64(2_000_000), payer.Lamports)
	assert.False(t, slot.Exists())
}
