package vm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/store"
)

// Runtime executes transactions against the ledger.
//
// CRITICAL: Execute holds a single lock for the entire call. Calls never
// interleave, so two mutations of one record are always serialized and
// every call sees the ledger as the previous call left it.
//
// A call either commits every account write together with its receipt in
// one SQLite transaction, or commits nothing but a failed receipt.
type Runtime struct {
	mu sync.Mutex

	store        *store.Store
	programs     map[ir.Pubkey]Program
	clock        Sequencer
	ids          CorrelationGenerator
	rent         Rent
	computeLimit uint64
	metrics      *Metrics
	logger       *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithRent sets the rent parameters. Default: DefaultRent().
func WithRent(r Rent) Option {
	return func(rt *Runtime) {
		rt.rent = r
	}
}

// WithComputeLimit sets the per-transaction compute budget.
//
// Default: 200,000 units (DefaultComputeLimit)
// Use a small limit (e.g. 300) in tests to exercise budget exhaustion.
func WithComputeLimit(units uint64) Option {
	return func(rt *Runtime) {
		rt.computeLimit = units
	}
}

// WithClock overrides the logical clock. By default the clock resumes
// after the last journaled seq.
func WithClock(c Sequencer) Option {
	return func(rt *Runtime) {
		rt.clock = c
	}
}

// WithCorrelationGenerator overrides the receipt correlation ids.
// Default: UUIDv7Generator.
func WithCorrelationGenerator(g CorrelationGenerator) Option {
	return func(rt *Runtime) {
		rt.ids = g
	}
}

// WithMetrics attaches collectors. Default: unregistered collectors.
func WithMetrics(m *Metrics) Option {
	return func(rt *Runtime) {
		rt.metrics = m
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = l
	}
}

// New creates a runtime over s hosting programs.
// Program ids must be unique.
func New(ctx context.Context, s *store.Store, programs []Program, opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		store:        s,
		programs:     make(map[ir.Pubkey]Program, len(programs)),
		ids:          UUIDv7Generator{},
		rent:         DefaultRent(),
		computeLimit: DefaultComputeLimit,
		logger:       slog.Default(),
	}
	for _, p := range programs {
		if _, dup := rt.programs[p.ID()]; dup {
			return nil, fmt.Errorf("duplicate program id %s", p.ID())
		}
		rt.programs[p.ID()] = p
	}

	for _, opt := range opts {
		opt(rt)
	}

	if rt.metrics == nil {
		rt.metrics = NewMetrics(nil)
	}
	if rt.clock == nil {
		last, err := s.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("resume clock: %w", err)
		}
		rt.clock = NewClockAt(last)
	}

	return rt, nil
}

// Rent returns the rent parameters in force.
func (rt *Runtime) Rent() Rent {
	return rt.rent
}

// Execute runs one transaction to completion.
//
// Returns the receipt and nil on success. A program failure returns the
// journaled failed receipt and the *ir.ProgramError. A transaction whose
// signatures do not verify is rejected with the *ir.ProgramError and never
// journaled, so its id stays free for a correctly signed copy. Store
// failures return a wrapped error and journal nothing. A sequence number is
// drawn only when a receipt is about to be written.
func (rt *Runtime) Execute(ctx context.Context, tx ir.Transaction) (ir.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ir.Receipt{}, fmt.Errorf("context cancelled: %w", err)
	}

	msg, err := tx.Message.Bytes()
	if err != nil {
		return ir.Receipt{}, ir.NewError(ir.ErrInvalidInstruction, "%v", err)
	}
	id, err := ir.TransactionID(tx.Message)
	if err != nil {
		return ir.Receipt{}, ir.NewError(ir.ErrInvalidInstruction, "%v", err)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	seen, err := rt.store.HasReceipt(ctx, id)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("execute %s: %w", id, err)
	}
	if seen {
		return ir.Receipt{}, ir.NewError(ir.ErrAlreadyProcessed, "transaction %s already journaled", id)
	}

	ix := tx.Message.Instruction
	receipt := ir.Receipt{
		ID:            id,
		CorrelationID: rt.ids.Generate(),
		ProgramID:     ix.ProgramID,
		Accounts:      ix.Accounts,
		Data:          ix.Data,
		Signers:       []ir.Pubkey{},
		Logs:          []string{},
		Result:        ir.IRObject{},
	}
	log := rt.logger.With("id", id, "correlation_id", receipt.CorrelationID)
	log.Debug("executing transaction", "program", ix.ProgramID, "accounts", len(ix.Accounts))

	verified, err := verifySignatures(tx, msg)
	if err != nil {
		rt.metrics.rejected(string(ir.KindOf(err)))
		log.Info("transaction rejected", "error", err)
		return ir.Receipt{}, err
	}
	receipt.Signers = sortedSigners(ix.Accounts, verified)

	program, ok := rt.programs[ix.ProgramID]
	if !ok {
		return rt.fail(ctx, log, receipt, ir.NewError(ir.ErrInvalidInstruction, "unknown program %s", ix.ProgramID))
	}

	keys := make([]ir.Pubkey, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		keys[i] = meta.Pubkey
	}
	loaded, err := rt.store.ReadAccounts(ctx, keys)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("execute %s: load accounts: %w", id, err)
	}

	ws := newWorkingSet(ix.Accounts, loaded, verified)
	meter := NewMeter(rt.computeLimit)
	vmctx := NewContext(ix.ProgramID, ws.ordered, rt.rent, meter)

	outcome, perr := rt.dispatch(program, vmctx, meter, ix.Data)
	receipt.Handler = outcome.Handler
	if outcome.Result != nil {
		receipt.Result = outcome.Result
	}
	if perr == nil {
		perr = ws.checkInvariants(ix.ProgramID)
	}

	receipt.ComputeUnits = meter.Used()
	receipt.Logs = frameLogs(ix.ProgramID, vmctx.Logs(), meter, perr)

	if perr != nil {
		if ir.KindOf(perr) == "" {
			return ir.Receipt{}, fmt.Errorf("execute %s: program fault: %w", id, perr)
		}
		return rt.fail(ctx, log, receipt, perr)
	}

	receipt.Status = ir.StatusOK
	receipt.Seq = rt.clock.Next()
	if err := rt.store.Commit(ctx, ws.dirty(receipt.Seq), receipt); err != nil {
		return ir.Receipt{}, fmt.Errorf("execute %s: commit: %w", id, err)
	}

	rt.metrics.observe(receipt.Handler, ir.StatusOK, "", receipt.ComputeUnits)
	log.Info("transaction committed",
		"seq", receipt.Seq,
		"handler", receipt.Handler,
		"compute_units", receipt.ComputeUnits,
	)
	return receipt, nil
}

// dispatch charges the instruction cost and runs the program. Exhaustion
// recorded on the meter overrides a nil program error.
func (rt *Runtime) dispatch(p Program, vmctx *Context, meter *Meter, data []byte) (Outcome, error) {
	if err := meter.Consume(InstructionCost); err != nil {
		return Outcome{}, err
	}
	outcome, err := p.Process(vmctx, data)
	if err == nil {
		err = meter.Err()
	}
	return outcome, err
}

// fail journals a failed receipt. No account is written.
func (rt *Runtime) fail(ctx context.Context, log *slog.Logger, receipt ir.Receipt, perr error) (ir.Receipt, error) {
	receipt.Status = ir.StatusFailed
	receipt.Seq = rt.clock.Next()
	receipt.ErrorKind = ir.KindOf(perr)
	receipt.ErrorMessage = perr.Error()
	if len(receipt.Logs) == 0 {
		receipt.Logs = []string{fmt.Sprintf("Program %s failed: %s", receipt.ProgramID, perr)}
	}

	if err := rt.store.WriteReceipt(ctx, receipt); err != nil {
		return ir.Receipt{}, fmt.Errorf("journal failed transaction %s: %w", receipt.ID, err)
	}

	rt.metrics.observe(receipt.Handler, ir.StatusFailed, string(receipt.ErrorKind), receipt.ComputeUnits)
	log.Info("transaction failed",
		"seq", receipt.Seq,
		"handler", receipt.Handler,
		"error_kind", receipt.ErrorKind,
		"error", perr,
	)
	return receipt, perr
}

// frameLogs wraps program trace lines the way the journal presents them.
func frameLogs(programID ir.Pubkey, lines []string, meter *Meter, perr error) []string {
	out := make([]string, 0, len(lines)+3)
	out = append(out, fmt.Sprintf("Program %s invoke [1]", programID))
	for _, l := range lines {
		out = append(out, "Program log: "+l)
	}
	out = append(out, fmt.Sprintf("Program %s consumed %d of %d compute units", programID, meter.Used(), meter.Limit()))
	if perr != nil {
		out = append(out, fmt.Sprintf("Program %s failed: %s", programID, perr))
	} else {
		out = append(out, fmt.Sprintf("Program %s success", programID))
	}
	return out
}
