package harness

import (
	"github.com/roach88/tally/internal/ir"
)

// TraceEvent is one executed step as it appears in the trace. Addresses
// in Logs and Result are replaced by "<label>" so traces are readable and
// independent of key material.
type TraceEvent struct {
	Step         int          `json:"step"` // 1-based
	Seq          int64        `json:"seq"`
	Handler      string       `json:"handler"`
	Status       string       `json:"status"`
	ErrorKind    ir.ErrorKind `json:"error_kind,omitempty"`
	ComputeUnits uint64       `json:"compute_units"`
	Logs         []string     `json:"logs"`
	Result       ir.IRObject  `json:"result"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step met its expectation and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step's event to the trace.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
