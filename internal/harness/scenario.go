package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/ir"
)

// Scenario defines a conformance test scenario: a set of funded wallets,
// a sequence of transactions with expected outcomes, and assertions on
// the final ledger.
//
// Principals and slots are named by label. Each label maps to a stable
// keypair, so the same scenario always produces the same addresses.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ComputeLimit overrides the per-transaction budget. Zero keeps the default.
	ComputeLimit uint64 `yaml:"compute_limit,omitempty"`

	// Rent overrides the rent parameters.
	Rent *RentSpec `yaml:"rent,omitempty"`

	// Accounts funds system wallets before the first step, by label.
	Accounts map[string]uint64 `yaml:"accounts,omitempty"`

	// Steps are executed in order, one transaction each.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final ledger and journal.
	// Supported types: record, balance, empty, receipt_count
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RentSpec mirrors vm.Rent in scenario files.
type RentSpec struct {
	LamportsPerByteYear uint64 `yaml:"lamports_per_byte_year"`
	ExemptionYears      uint64 `yaml:"exemption_years"`
	AccountOverhead     uint64 `yaml:"account_overhead"`
}

// Step is one transaction. Exactly one of Init and Mutate is set.
type Step struct {
	Init   *InitStep   `yaml:"init,omitempty"`
	Mutate *MutateStep `yaml:"mutate,omitempty"`

	// Signers overrides who signs the transaction. By default every
	// principal of the step signs. An empty list is not an override; use
	// unsigned to send no signatures at all.
	Signers  []string `yaml:"signers,omitempty"`
	Unsigned bool     `yaml:"unsigned,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must commit.
	Expect *Expect `yaml:"expect,omitempty"`
}

// InitStep creates a record.
type InitStep struct {
	Payer   string `yaml:"payer"`
	Owner   string `yaml:"owner,omitempty"` // defaults to payer
	Slot    string `yaml:"slot"`
	Payload uint64 `yaml:"payload"`
}

// MutateStep applies an operand to a record.
type MutateStep struct {
	Signer  string `yaml:"signer"`
	Record  string `yaml:"record"`
	Operand uint32 `yaml:"operand"`
}

// Expect specifies an expected transaction outcome.
type Expect struct {
	// Error is the expected error kind ("Unauthorized", ...). Empty means
	// the transaction must commit.
	Error string `yaml:"error,omitempty"`

	// Payload is the stored payload of the step's record afterwards.
	// For a failed step this checks the record was left unchanged.
	Payload *uint64 `yaml:"payload,omitempty"`

	// ComputeUnits is the exact compute consumption.
	ComputeUnits *uint64 `yaml:"compute_units,omitempty"`

	// Logs must appear in the program log, in this order. Other lines may
	// be interleaved. Addresses may be written as <label>.
	Logs []string `yaml:"logs,omitempty"`
}

// Assertion validates the final ledger or journal.
type Assertion struct {
	// Type specifies the assertion type:
	// - "record": the account decodes as a record with Owner and/or Payload
	// - "balance": the account holds exactly Lamports
	// - "empty": the account holds nothing
	// - "receipt_count": the journal holds Count receipts matching Status/Handler
	Type string `yaml:"type"`

	// Account is the label of the account checked (record, balance, empty).
	Account string `yaml:"account,omitempty"`

	// Owner is the expected record owner label (record).
	Owner string `yaml:"owner,omitempty"`

	// Payload is the expected stored payload (record).
	Payload *uint64 `yaml:"payload,omitempty"`

	// Lamports is the expected balance (balance).
	Lamports *uint64 `yaml:"lamports,omitempty"`

	// Status and Handler filter receipts (receipt_count). Empty matches all.
	Status  string `yaml:"status,omitempty"`
	Handler string `yaml:"handler,omitempty"`

	// Count is the expected number of receipts (receipt_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertRecord       = "record"
	AssertBalance      = "balance"
	AssertEmpty        = "empty"
	AssertReceiptCount = "receipt_count"
)

// errorKinds lists the kinds a step may expect.
var errorKinds = []ir.ErrorKind{
	ir.ErrAlreadyInitialized,
	ir.ErrInsufficientFunds,
	ir.ErrMissingSignature,
	ir.ErrUnauthorized,
	ir.ErrMalformedRecord,
	ir.ErrNotInitialized,
	ir.ErrInvalidInstruction,
	ir.ErrComputeBudgetExceeded,
	ir.ErrInvariantViolation,
	ir.ErrAlreadyProcessed,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.Rent != nil && (s.Rent.LamportsPerByteYear == 0 || s.Rent.ExemptionYears == 0) {
		return fmt.Errorf("rent: lamports_per_byte_year and exemption_years must be positive")
	}

	for label := range s.Accounts {
		if label == "" {
			return fmt.Errorf("accounts: empty label")
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	switch {
	case step.Init != nil && step.Mutate != nil:
		return fmt.Errorf("steps[%d]: set init or mutate, not both", index)
	case step.Init != nil:
		if step.Init.Payer == "" {
			return fmt.Errorf("steps[%d].init: payer is required", index)
		}
		if step.Init.Slot == "" {
			return fmt.Errorf("steps[%d].init: slot is required", index)
		}
	case step.Mutate != nil:
		if step.Mutate.Signer == "" {
			return fmt.Errorf("steps[%d].mutate: signer is required", index)
		}
		if step.Mutate.Record == "" {
			return fmt.Errorf("steps[%d].mutate: record is required", index)
		}
	default:
		return fmt.Errorf("steps[%d]: init or mutate is required", index)
	}

	if step.Unsigned && len(step.Signers) > 0 {
		return fmt.Errorf("steps[%d]: unsigned conflicts with signers", index)
	}

	if step.Expect != nil && step.Expect.Error != "" &&
		!slices.Contains(errorKinds, ir.ErrorKind(step.Expect.Error)) {
		return fmt.Errorf("steps[%d].expect: unknown error kind %q", index, step.Expect.Error)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRecord:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for record", index)
		}
		if a.Owner == "" && a.Payload == nil {
			return fmt.Errorf("assertions[%d]: owner or payload is required for record", index)
		}
	case AssertBalance:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for balance", index)
		}
		if a.Lamports == nil {
			return fmt.Errorf("assertions[%d]: lamports is required for balance", index)
		}
	case AssertEmpty:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for empty", index)
		}
	case AssertReceiptCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for receipt_count", index)
		}
		if a.Status != "" && a.Status != ir.StatusOK && a.Status != ir.StatusFailed {
			return fmt.Errorf("assertions[%d]: status must be ok or failed", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
