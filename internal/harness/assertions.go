package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
	"github.com/roach88/tally/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// AssertionContext is what assertions read the final ledger through.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	ProgramID ir.Pubkey
	labels    *labels
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertRecord:
		return assertRecord(a, actx)
	case AssertBalance:
		return assertBalance(a, actx)
	case AssertEmpty:
		return assertEmpty(a, actx)
	case AssertReceiptCount:
		return assertReceiptCount(a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertRecord checks the account decodes as a record with the expected
// owner and payload.
func assertRecord(a Assertion, actx *AssertionContext) error {
	acct, err := actx.Store.ReadAccount(actx.Ctx, actx.labels.addr(a.Account))
	if errors.Is(err, sql.ErrNoRows) {
		return &AssertionError{Type: AssertRecord, Expected: fmt.Sprintf("record at %s", a.Account), Actual: "account does not exist"}
	}
	if err != nil {
		return err
	}
	if acct.Owner != actx.ProgramID {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("%s owned by %s", a.Account, ProgramLabel),
			Actual:   fmt.Sprintf("owned by %s", actx.labels.label(acct.Owner)),
		}
	}
	rec, err := program.DecodeRecord(acct.Data)
	if err != nil {
		return &AssertionError{Type: AssertRecord, Expected: "valid record layout", Actual: err.Error()}
	}

	if a.Owner != "" && rec.Owner != actx.labels.addr(a.Owner) {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record owner %s", a.Owner),
			Actual:   fmt.Sprintf("record owner %s", actx.labels.label(rec.Owner)),
		}
	}
	if a.Payload != nil && rec.Payload != *a.Payload {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("payload %d", *a.Payload),
			Actual:   fmt.Sprintf("payload %d", rec.Payload),
		}
	}
	return nil
}

func assertBalance(a Assertion, actx *AssertionContext) error {
	var lamports uint64
	acct, err := actx.Store.ReadAccount(actx.Ctx, actx.labels.addr(a.Account))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		lamports = acct.Lamports
	}

	if lamports != *a.Lamports {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("%s holds %d lamports", a.Account, *a.Lamports),
			Actual:   fmt.Sprintf("%d lamports", lamports),
		}
	}
	return nil
}

func assertEmpty(a Assertion, actx *AssertionContext) error {
	acct, err := actx.Store.ReadAccount(actx.Ctx, actx.labels.addr(a.Account))
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if acct.Exists() {
		return &AssertionError{
			Type:     AssertEmpty,
			Expected: fmt.Sprintf("%s holds nothing", a.Account),
			Actual:   fmt.Sprintf("%d lamports, %d data bytes", acct.Lamports, len(acct.Data)),
		}
	}
	return nil
}

// assertReceiptCount counts journaled receipts matching the filters.
func assertReceiptCount(a Assertion, actx *AssertionContext) error {
	receipts, err := actx.Store.ListReceipts(actx.Ctx, nil)
	if err != nil {
		return err
	}

	count := 0
	for _, r := range receipts {
		if a.Status != "" && r.Status != a.Status {
			continue
		}
		if a.Handler != "" && r.Handler != a.Handler {
			continue
		}
		count++
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertReceiptCount,
			Expected: fmt.Sprintf("%d receipts (status=%q handler=%q)", a.Count, a.Status, a.Handler),
			Actual:   fmt.Sprintf("%d receipts", count),
		}
	}
	return nil
}

// readPayload returns the stored payload of the record at addr.
func readPayload(ctx context.Context, s *store.Store, addr, programID ir.Pubkey) (uint64, error) {
	acct, err := s.ReadAccount(ctx, addr)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("does not exist")
	}
	if err != nil {
		return 0, err
	}
	if acct.Owner != programID {
		return 0, fmt.Errorf("not owned by the counter program")
	}
	rec, err := program.DecodeRecord(acct.Data)
	if err != nil {
		return 0, err
	}
	return rec.Payload, nil
}
