package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
	"github.com/roach88/tally/internal/vm"
)

// ProgramLabel names the counter program's address in traces.
const ProgramLabel = "program"

// Harness is the test execution engine.
// It runs scenarios against the real runtime with a deterministic clock
// and correlation ids.
type Harness struct {
	store     *store.Store
	runtime   *vm.Runtime
	clock     *testutil.DeterministicClock
	programID ir.Pubkey
	labels    *labels
	logger    *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and runtime
// 2. Fund the scenario's wallets
// 3. Execute steps, checking each expect clause
// 4. Evaluate assertions against the final ledger
//
// The returned error is reserved for failures of the harness itself;
// unmet expectations are recorded in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, st, scenario)
	if err != nil {
		return nil, err
	}

	if err := h.fund(ctx, scenario.Accounts); err != nil {
		return nil, fmt.Errorf("failed to fund accounts: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     st,
		ProgramID: h.programID,
		labels:    h.labels,
	}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(ctx context.Context, st *store.Store, scenario *Scenario) (*Harness, error) {
	rent := vm.DefaultRent()
	if scenario.Rent != nil {
		rent = vm.Rent{
			LamportsPerByteYear: scenario.Rent.LamportsPerByteYear,
			ExemptionYears:      scenario.Rent.ExemptionYears,
			AccountOverhead:     scenario.Rent.AccountOverhead,
		}
	}
	limit := vm.DefaultComputeLimit
	if scenario.ComputeLimit > 0 {
		limit = scenario.ComputeLimit
	}

	h := &Harness{
		store:     st,
		clock:     testutil.NewDeterministicClock(),
		programID: program.DefaultProgramID,
		labels:    newLabels(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	h.labels.name(h.programID, ProgramLabel)

	rt, err := vm.New(ctx, st, []vm.Program{program.New(h.programID)},
		vm.WithClock(h.clock),
		vm.WithCorrelationGenerator(testutil.NewCountingGenerator("corr")),
		vm.WithRent(rent),
		vm.WithComputeLimit(limit),
		vm.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start runtime: %w", err)
	}
	h.runtime = rt
	return h, nil
}

// fund creates the scenario's wallets in label order.
func (h *Harness) fund(ctx context.Context, accounts map[string]uint64) error {
	wallets := make([]ir.Account, 0, len(accounts))
	for _, label := range slices.Sorted(maps.Keys(accounts)) {
		wallets = append(wallets, ir.Account{
			Address:  h.labels.addr(label),
			Owner:    ir.SystemID,
			Lamports: accounts[label],
			Data:     []byte{},
		})
	}
	if len(wallets) == 0 {
		return nil
	}
	return h.store.PutAccounts(ctx, wallets)
}

// executeStep runs one transaction and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	ix, principals, target := h.buildInstruction(step)

	signers := principals
	switch {
	case step.Unsigned:
		signers = nil
	case len(step.Signers) > 0:
		signers = step.Signers
	}
	keys := make([]ir.Keypair, 0, len(signers))
	for _, label := range slices.Compact(slices.Clone(signers)) {
		keys = append(keys, h.labels.key(label))
	}

	tx := ir.Transaction{Message: ir.Message{Nonce: uint64(index + 1), Instruction: ix}}
	if err := tx.Sign(keys...); err != nil {
		return err
	}

	receipt, err := h.runtime.Execute(ctx, tx)
	if err != nil && ir.KindOf(err) == "" {
		return err
	}

	event := h.traceEvent(index, receipt, err)
	result.AddTrace(event)
	h.logger.Debug("step executed", "step", event.Step, "seq", event.Seq, "status", event.Status)

	h.checkExpect(ctx, index, step.Expect, event, target, result)
	return nil
}

// buildInstruction returns the step's instruction, its default signers,
// and the label of the record it targets.
func (h *Harness) buildInstruction(step Step) (ir.Instruction, []string, string) {
	if step.Init != nil {
		s := step.Init
		owner := cmp.Or(s.Owner, s.Payer)
		ix := program.NewInitializeInstruction(h.programID,
			h.labels.addr(s.Slot), h.labels.addr(s.Payer), h.labels.addr(owner), s.Payload)
		return ix, []string{s.Payer, owner}, s.Slot
	}
	s := step.Mutate
	ix := program.NewMutateInstruction(h.programID, h.labels.addr(s.Record), h.labels.addr(s.Signer), s.Operand)
	return ix, []string{s.Signer}, s.Record
}

// traceEvent converts a receipt into its labeled trace form. A rejection
// that journaled nothing (a replay or a signature that does not verify) has
// no receipt.
func (h *Harness) traceEvent(index int, receipt ir.Receipt, err error) TraceEvent {
	if receipt.ID == "" {
		return TraceEvent{
			Step:      index + 1,
			Status:    "rejected",
			ErrorKind: ir.KindOf(err),
			Logs:      []string{},
			Result:    ir.IRObject{},
		}
	}

	logs := make([]string, len(receipt.Logs))
	for i, l := range receipt.Logs {
		logs[i] = h.labels.redact(l)
	}
	res := make(ir.IRObject, len(receipt.Result))
	for k, v := range receipt.Result {
		if s, ok := v.(ir.IRString); ok {
			v = ir.IRString(h.labels.redact(string(s)))
		}
		res[k] = v
	}
	return TraceEvent{
		Step:         index + 1,
		Seq:          receipt.Seq,
		Handler:      receipt.Handler,
		Status:       receipt.Status,
		ErrorKind:    receipt.ErrorKind,
		ComputeUnits: receipt.ComputeUnits,
		Logs:         logs,
		Result:       res,
	}
}

func (h *Harness) checkExpect(ctx context.Context, index int, expect *Expect, event TraceEvent, target string, result *Result) {
	prefix := fmt.Sprintf("step %d", index+1)
	if expect == nil {
		expect = &Expect{}
	}

	if expect.Error == "" && event.Status != ir.StatusOK {
		result.AddError(fmt.Sprintf("%s: expected success, got %s (%s)", prefix, event.Status, event.ErrorKind))
	}
	if expect.Error != "" && string(event.ErrorKind) != expect.Error {
		got := string(event.ErrorKind)
		if got == "" {
			got = "success"
		}
		result.AddError(fmt.Sprintf("%s: expected error %s, got %s", prefix, expect.Error, got))
	}

	if expect.ComputeUnits != nil && *expect.ComputeUnits != event.ComputeUnits {
		result.AddError(fmt.Sprintf("%s: expected %d compute units, got %d", prefix, *expect.ComputeUnits, event.ComputeUnits))
	}

	if len(expect.Logs) > 0 {
		if missing, ok := containsInOrder(event.Logs, expect.Logs); !ok {
			result.AddError(fmt.Sprintf("%s: log line %q not found in order\n  logs:\n    %s",
				prefix, missing, strings.Join(event.Logs, "\n    ")))
		}
	}

	if expect.Payload != nil {
		got, err := readPayload(ctx, h.store, h.labels.addr(target), h.programID)
		switch {
		case err != nil:
			result.AddError(fmt.Sprintf("%s: record %s: %v", prefix, target, err))
		case got != *expect.Payload:
			result.AddError(fmt.Sprintf("%s: expected payload %d, got %d", prefix, *expect.Payload, got))
		}
	}
}

// containsInOrder reports whether want is a subsequence of logs. A wanted
// line matches a log line exactly or with its "Program log: " prefix
// removed. Returns the first line that could not be matched.
func containsInOrder(logs, want []string) (string, bool) {
	i := 0
	for _, w := range want {
		found := false
		for ; i < len(logs); i++ {
			if logs[i] == w || strings.TrimPrefix(logs[i], "Program log: ") == w {
				found = true
				i++
				break
			}
		}
		if !found {
			return w, false
		}
	}
	return "", true
}

// labels maps scenario labels to addresses and back.
type labels struct {
	byAddr map[ir.Pubkey]string
}

func newLabels() *labels {
	return &labels{byAddr: make(map[ir.Pubkey]string)}
}

// key returns the stable keypair for label and remembers its address.
func (l *labels) key(label string) ir.Keypair {
	k := testutil.Keypair(label)
	l.byAddr[k.Pubkey()] = label
	return k
}

func (l *labels) addr(label string) ir.Pubkey {
	return l.key(label).Pubkey()
}

// name registers an address that is not derived from a label.
func (l *labels) name(pk ir.Pubkey, label string) {
	l.byAddr[pk] = label
}

// label returns the label of pk, or its base58 form if unknown.
func (l *labels) label(pk ir.Pubkey) string {
	if name, ok := l.byAddr[pk]; ok {
		return name
	}
	return pk.String()
}

// redact replaces every known address in s with "<label>".
func (l *labels) redact(s string) string {
	for pk, name := range l.byAddr {
		s = strings.ReplaceAll(s, pk.String(), "<"+name+">")
	}
	return s
}
