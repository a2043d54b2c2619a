package vm_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
	"github.com/roach88/tally/internal/vm"
)

var (
	programID = ir.PubkeyFromSeed("vm_test/counter")
	alice     = testutil.Keypair("alice")
	bob       = testutil.Keypair("bob")
	record    = testutil.Keypair("record")
)

const startingBalance = 10_000_000

type env struct {
	t     *testing.T
	store *store.Store
	rt    *vm.Runtime
	nonce uint64
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRuntime(t *testing.T, s *store.Store, opts ...vm.Option) *vm.Runtime {
	t.Helper()
	opts = append([]vm.Option{
		vm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		vm.WithCorrelationGenerator(testutil.NewCountingGenerator("corr")),
	}, opts...)
	rt, err := vm.New(context.Background(), s, []vm.Program{program.New(programID)}, opts...)
	require.NoError(t, err)
	return rt
}

func newEnv(t *testing.T, opts ...vm.Option) *env {
	t.Helper()
	s := openStore(t)
	ctx := context.Background()
	_, err := s.Fund(ctx, alice.Pubkey(), startingBalance)
	require.NoError(t, err)
	_, err = s.Fund(ctx, bob.Pubkey(), startingBalance)
	require.NoError(t, err)
	return &env{t: t, store: s, rt: newRuntime(t, s, opts...)}
}

func (e *env) exec(ix ir.Instruction, signers ...ir.Keypair) (ir.Receipt, error) {
	e.t.Helper()
	e.nonce++
	return e.rt.Execute(context.Background(), testutil.SignedTx(e.t, e.nonce, ix, signers...))
}

func (e *env) initialize(payload uint64) ir.Receipt {
	e.t.Helper()
	r, err := e.exec(program.NewInitializeInstruction(programID, record.Pubkey(), alice.Pubkey(), alice.Pubkey(), payload), alice)
	require.NoError(e.t, err)
	return r
}

func (e *env) account(pk ir.Pubkey) ir.Account {
	e.t.Helper()
	a, err := e.store.ReadAccount(context.Background(), pk)
	require.NoError(e.t, err)
	return a
}

func (e *env) payload() uint64 {
	e.t.Helper()
	rec, err := program.DecodeRecord(e.account(record.Pubkey()).Data)
	require.NoError(e.t, err)
	return rec.Payload
}

func TestExecute_InitializeThenMutate(t *testing.T) {
	e := newEnv(t)

	created := e.initialize(100)
	assert.True(t, created.OK())
	assert.Equal(t, int64(1), created.Seq)
	assert.Equal(t, "corr-1", created.CorrelationID)
	assert.Equal(t, program.HandlerInitialize, created.Handler)
	assert.Equal(t, []ir.Pubkey{alice.Pubkey()}, created.Signers)
	assert.Equal(t, uint64(1648), created.ComputeUnits)
	assert.Equal(t, []string{
		"Program " + programID.String() + " invoke [1]",
		"Program log: Invoke from: " + programID.String(),
		"Program log: New account: " + record.Pubkey().String(),
		"Program log: Changed data to: 100",
		"Program " + programID.String() + " consumed 1648 of 200000 compute units",
		"Program " + programID.String() + " success",
	}, created.Logs)

	rent := vm.DefaultRent().MinimumBalance(program.RecordSize)
	assert.Equal(t, uint64(startingBalance)-rent, e.account(alice.Pubkey()).Lamports)
	rec := e.account(record.Pubkey())
	assert.Equal(t, programID, rec.Owner)
	assert.Equal(t, rent, rec.Lamports)
	assert.Equal(t, int64(1), rec.UpdatedSeq)

	mut, err := e.exec(program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 7), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), mut.Seq)
	assert.Equal(t, uint64(750), mut.ComputeUnits)
	assert.Equal(t, ir.IRInt(114), mut.Result["add"])
	assert.Equal(t, ir.IRInt(93), mut.Result["sub"])
	assert.Equal(t, ir.IRInt(700), mut.Result["mul"])
	assert.Equal(t, uint64(14), e.payload())
	assert.Equal(t, int64(2), e.account(record.Pubkey()).UpdatedSeq)

	stored, err := e.store.ReadReceipt(context.Background(), mut.ID)
	require.NoError(t, err)
	assert.Equal(t, mut, stored)
}

func TestExecute_UnauthorizedJournaledWithoutWrites(t *testing.T) {
	e := newEnv(t)
	e.initialize(100)
	before := e.account(record.Pubkey())

	r, execErr := e.exec(program.NewMutateInstruction(programID, record.Pubkey(), bob.Pubkey(), 7), bob)
	require.Error(t, execErr)
	assert.True(t, ir.IsKind(execErr, ir.ErrUnauthorized))

	assert.Equal(t, ir.StatusFailed, r.Status)
	assert.Equal(t, ir.ErrUnauthorized, r.ErrorKind)
	assert.Equal(t, program.HandlerMutate, r.Handler)
	assert.Equal(t, before, e.account(record.Pubkey()), "record must be bit-identical")

	journaled, err := e.store.ReadReceipt(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, journaled)
	assert.Equal(t, "Program "+programID.String()+" failed: "+execErr.Error(), r.Logs[len(r.Logs)-1])
}

func TestExecute_ExactlyOnceInitialization(t *testing.T) {
	e := newEnv(t)
	e.initialize(100)
	aliceAfterFirst := e.account(alice.Pubkey()).Lamports

	_, err := e.exec(program.NewInitializeInstruction(programID, record.Pubkey(), bob.Pubkey(), bob.Pubkey(), 5), bob)
	assert.True(t, ir.IsKind(err, ir.ErrAlreadyInitialized), "got %v", err)

	rec, err := program.DecodeRecord(e.account(record.Pubkey()).Data)
	require.NoError(t, err)
	assert.Equal(t, alice.Pubkey(), rec.Owner)
	assert.Equal(t, uint64(100), rec.Payload)
	assert.Equal(t, uint64(startingBalance), e.account(bob.Pubkey()).Lamports)
	assert.Equal(t, aliceAfterFirst, e.account(alice.Pubkey()).Lamports)
}

func TestExecute_InsufficientFundsLeavesPayer(t *testing.T) {
	e := newEnv(t)
	poor := testutil.Keypair("poor")
	_, err := e.store.Fund(context.Background(), poor.Pubkey(), 1000)
	require.NoError(t, err)

	r, err := e.exec(program.NewInitializeInstruction(programID, record.Pubkey(), poor.Pubkey(), poor.Pubkey(), 1), poor)
	assert.True(t, ir.IsKind(err, ir.ErrInsufficientFunds), "got %v", err)
	assert.False(t, r.OK())
	assert.Equal(t, uint64(1000), e.account(poor.Pubkey()).Lamports)

	_, err = e.store.ReadAccount(context.Background(), record.Pubkey())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestExecute_MissingSignature(t *testing.T) {
	e := newEnv(t)
	e.initialize(100)

	// Flagged signer, but no signature supplied.
	r, err := e.exec(program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 7))
	assert.True(t, ir.IsKind(err, ir.ErrMissingSignature), "got %v", err)
	assert.Equal(t, ir.Receipt{}, r)
	assert.Equal(t, uint64(100), e.payload())

	// Signed by the wrong key.
	_, err = e.exec(program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 7), bob)
	assert.True(t, ir.IsKind(err, ir.ErrMissingSignature), "got %v", err)

	receipts, err := e.store.ListReceipts(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, receipts, 1, "unverified transactions are not journaled")
}

func TestExecute_ForgedCopyDoesNotBurnID(t *testing.T) {
	e := newEnv(t)
	e.initialize(100)

	tx := testutil.SignedTx(t, 7, program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 7), alice)
	forged := tx
	forged.Signatures = []ir.Signature{{Pubkey: alice.Pubkey(), Sig: make([]byte, 64)}}

	_, err := e.rt.Execute(context.Background(), forged)
	assert.True(t, ir.IsKind(err, ir.ErrMissingSignature), "got %v", err)

	id, err := ir.TransactionID(tx.Message)
	require.NoError(t, err)
	seen, err := e.store.HasReceipt(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, seen)

	r, err := e.rt.Execute(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Seq)
	assert.Equal(t, uint64(14), e.payload())
}

func TestExecute_ReplayRejected(t *testing.T) {
	e := newEnv(t)
	e.initialize(100)

	tx := testutil.SignedTx(t, 99, program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 2), alice)
	_, err := e.rt.Execute(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), e.payload())

	_, err = e.rt.Execute(context.Background(), tx)
	assert.True(t, ir.IsKind(err, ir.ErrAlreadyProcessed), "got %v", err)
	assert.Equal(t, uint64(50), e.payload())

	receipts, err := e.store.ListReceipts(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, receipts, 2, "replays are not journaled")
}

func TestExecute_UnknownProgram(t *testing.T) {
	e := newEnv(t)

	ix := program.NewMutateInstruction(ir.PubkeyFromSeed("nowhere"), record.Pubkey(), alice.Pubkey(), 1)
	r, err := e.exec(ix, alice)
	assert.True(t, ir.IsKind(err, ir.ErrInvalidInstruction), "got %v", err)
	assert.Equal(t, ir.StatusFailed, r.Status)
}

func TestExecute_ComputeBudgetExceededRollsBack(t *testing.T) {
	e := newEnv(t)
	e.initialize(100)

	tight := newRuntime(t, e.store, vm.WithComputeLimit(700))
	tx := testutil.SignedTx(t, 500, program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 7), alice)

	r, err := tight.Execute(context.Background(), tx)
	assert.True(t, ir.IsKind(err, ir.ErrComputeBudgetExceeded), "got %v", err)
	assert.Equal(t, uint64(700), r.ComputeUnits)
	assert.Equal(t, int64(2), r.Seq, "a reopened runtime resumes after the journal")
	assert.Equal(t, uint64(100), e.payload(), "exhaustion discards the handler's writes")
}

func TestExecute_InitializeBudgetExceeded(t *testing.T) {
	e := newEnv(t, vm.WithComputeLimit(1000))

	_, err := e.exec(program.NewInitializeInstruction(programID, record.Pubkey(), alice.Pubkey(), alice.Pubkey(), 1), alice)
	assert.True(t, ir.IsKind(err, ir.ErrComputeBudgetExceeded), "got %v", err)
	assert.Equal(t, uint64(startingBalance), e.account(alice.Pubkey()).Lamports)
}

func TestExecute_AddressHistory(t *testing.T) {
	e := newEnv(t)
	e.initialize(100)
	_, err := e.exec(program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 7), alice)
	require.NoError(t, err)
	_, err = e.exec(program.NewMutateInstruction(programID, record.Pubkey(), bob.Pubkey(), 7), bob)
	require.Error(t, err)

	addr := record.Pubkey()
	history, err := e.store.ListReceipts(context.Background(), &addr)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{ir.StatusOK, ir.StatusOK, ir.StatusFailed},
		[]string{history[0].Status, history[1].Status, history[2].Status})
}

func TestExecute_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := vm.NewMetrics(reg)
	e := newEnv(t, vm.WithMetrics(m))

	e.initialize(100)
	_, _ = e.exec(program.NewMutateInstruction(programID, record.Pubkey(), bob.Pubkey(), 7), bob)
	_, _ = e.exec(program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 7))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Transactions.WithLabelValues("initialize", "ok", "")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Transactions.WithLabelValues("mutate", "failed", "Unauthorized")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Transactions.WithLabelValues("", "rejected", "MissingSignature")))
}

func TestExecute_CancelledContext(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx := testutil.SignedTx(t, 1, program.NewInitializeInstruction(programID, record.Pubkey(), alice.Pubkey(), alice.Pubkey(), 1), alice)
	_, err := e.rt.Execute(ctx, tx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_DeterministicClock(t *testing.T) {
	clock := testutil.NewDeterministicClock()
	clock.Reset(40)
	e := newEnv(t, vm.WithClock(clock))

	r := e.initialize(1)
	assert.Equal(t, int64(41), r.Seq)
}

// rogue misbehaves in ways the runtime must catch.
type rogue struct {
	id   ir.Pubkey
	mode string
}

func (r rogue) ID() ir.Pubkey { return r.id }

func (r rogue) Process(ctx *vm.Context, _ []byte) (vm.Outcome, error) {
	out := vm.Outcome{Handler: r.mode}
	switch r.mode {
	case "mint":
		a, err := ctx.Account(0)
		if err != nil {
			return out, err
		}
		a.Lamports += 1
	case "fault":
		return out, errors.New("disk on fire")
	}
	return out, nil
}

func TestExecute_InvariantViolation(t *testing.T) {
	s := openStore(t)
	_, err := s.Fund(context.Background(), alice.Pubkey(), 10)
	require.NoError(t, err)

	rogueID := ir.PubkeyFromSeed("rogue")
	rt, err := vm.New(context.Background(), s, []vm.Program{rogue{id: rogueID, mode: "mint"}},
		vm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	ix := ir.Instruction{ProgramID: rogueID, Accounts: []ir.AccountMeta{{Pubkey: alice.Pubkey(), IsWritable: true}}}
	r, err := rt.Execute(context.Background(), testutil.SignedTx(t, 1, ix))
	assert.True(t, ir.IsKind(err, ir.ErrInvariantViolation), "got %v", err)
	assert.Equal(t, ir.StatusFailed, r.Status)

	acct, err := s.ReadAccount(context.Background(), alice.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), acct.Lamports)
}

func TestExecute_HostFaultNotJournaled(t *testing.T) {
	s := openStore(t)
	rogueID := ir.PubkeyFromSeed("rogue")
	rt, err := vm.New(context.Background(), s, []vm.Program{rogue{id: rogueID, mode: "fault"}},
		vm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	_, err = rt.Execute(context.Background(), testutil.SignedTx(t, 1, ir.Instruction{ProgramID: rogueID}))
	require.Error(t, err)
	assert.Equal(t, ir.ErrorKind(""), ir.KindOf(err))

	seq, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}

func TestExecute_SeqContiguousAcrossRejections(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.Fund(ctx, alice.Pubkey(), startingBalance)
	require.NoError(t, err)

	faultID := ir.PubkeyFromSeed("rogue")
	rt, err := vm.New(ctx, s, []vm.Program{program.New(programID), rogue{id: faultID, mode: "fault"}},
		vm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	first, err := rt.Execute(ctx, testutil.SignedTx(t, 1,
		program.NewInitializeInstruction(programID, record.Pubkey(), alice.Pubkey(), alice.Pubkey(), 100), alice))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)

	_, err = rt.Execute(ctx, testutil.SignedTx(t, 2, ir.Instruction{ProgramID: faultID}))
	require.Error(t, err)
	_, err = rt.Execute(ctx, testutil.SignedTx(t, 3,
		program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 7)))
	assert.True(t, ir.IsKind(err, ir.ErrMissingSignature), "got %v", err)

	next, err := rt.Execute(ctx, testutil.SignedTx(t, 4,
		program.NewMutateInstruction(programID, record.Pubkey(), alice.Pubkey(), 7), alice))
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Seq)
}

func TestNew_DuplicateProgram(t *testing.T) {
	s := openStore(t)
	_, err := vm.New(context.Background(), s, []vm.Program{program.New(programID), program.New(programID)})
	assert.Error(t, err)
}
