package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tally/internal/ir"
)

// Snapshot renders a scenario's trace for golden comparison: a header
// line naming the scenario, then one canonical JSON object per step.
// Correlation ids and transaction ids are left out; seq, logs, compute
// units, and results are deterministic under the harness.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	var buf bytes.Buffer

	header, err := ir.MarshalCanonical(ir.IRObject{"scenario": ir.IRString(scenarioName)})
	if err != nil {
		return nil, err
	}
	buf.Write(header)
	buf.WriteByte('\n')

	for _, event := range result.Trace {
		line, err := ir.MarshalCanonical(event.canonical())
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", event.Step, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// canonical converts the event to an IRObject for canonical JSON.
func (e TraceEvent) canonical() ir.IRObject {
	logs := make(ir.IRArray, len(e.Logs))
	for i, l := range e.Logs {
		logs[i] = ir.IRString(l)
	}
	result := e.Result
	if result == nil {
		result = ir.IRObject{}
	}

	obj := ir.IRObject{
		"step":          ir.IRInt(e.Step),
		"seq":           ir.IRInt(e.Seq),
		"handler":       ir.IRString(e.Handler),
		"status":        ir.IRString(e.Status),
		"compute_units": ir.NewUint(e.ComputeUnits),
		"logs":          logs,
		"result":        result,
	}
	if e.ErrorKind != "" {
		obj["error_kind"] = ir.IRString(e.ErrorKind)
	}
	return obj
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Test failure (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
