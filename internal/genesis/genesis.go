// Package genesis loads CUE genesis documents and applies them to a fresh
// ledger: the deployed program id, rent parameters, and funded wallets.
//
// Example document:
//
//	program_seed: "tally/counter"
//	rent: {
//		lamports_per_byte_year: 3480
//		exemption_years:        2
//	}
//	accounts: {
//		alice: {keypair: "alice.json", lamports: 10_000_000}
//		bob:   {address: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", lamports: 5_000_000}
//	}
package genesis

import (
	"cmp"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/vm"
)

//go:embed schema.cue
var schemaCUE string

// Document is a validated genesis document.
type Document struct {
	ProgramID ir.Pubkey
	Rent      vm.Rent
	Accounts  []Allocation // sorted by Name
}

// Allocation funds one wallet.
type Allocation struct {
	Name     string    `json:"name"`
	Address  ir.Pubkey `json:"address"`
	Lamports uint64    `json:"lamports"`
}

// Error is a genesis validation failure, positioned in the CUE source
// when CUE can tell where.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type rawDocument struct {
	ProgramID   string                `json:"program_id"`
	ProgramSeed string                `json:"program_seed"`
	Rent        *rawRent              `json:"rent"`
	Accounts    map[string]rawAccount `json:"accounts"`
}

type rawRent struct {
	LamportsPerByteYear uint64 `json:"lamports_per_byte_year"`
	ExemptionYears      uint64 `json:"exemption_years"`
	AccountOverhead     uint64 `json:"account_overhead"`
}

type rawAccount struct {
	Address  string `json:"address"`
	Keypair  string `json:"keypair"`
	Lamports uint64 `json:"lamports"`
}

// Load reads and validates the genesis document at path. Keypair paths
// inside it resolve relative to the document's directory.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return Parse(data, path, filepath.Dir(path))
}

// Parse validates CUE source against the genesis schema.
func Parse(src []byte, filename, baseDir string) (*Document, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("genesis/schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("genesis schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v = schema.LookupPath(cue.ParsePath("#Genesis")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var raw rawDocument
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}

	doc := &Document{ProgramID: program.DefaultProgramID, Rent: vm.DefaultRent()}

	switch {
	case raw.ProgramID != "" && raw.ProgramSeed != "":
		return nil, &Error{
			Field:   "program_id",
			Message: "set program_id or program_seed, not both",
			Pos:     v.LookupPath(cue.ParsePath("program_id")).Pos(),
		}
	case raw.ProgramID != "":
		pid, err := ir.ParsePubkey(raw.ProgramID)
		if err != nil {
			return nil, &Error{Field: "program_id", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("program_id")).Pos()}
		}
		doc.ProgramID = pid
	case raw.ProgramSeed != "":
		doc.ProgramID = ir.PubkeyFromSeed(raw.ProgramSeed)
	}

	if raw.Rent != nil {
		doc.Rent = vm.Rent{
			LamportsPerByteYear: raw.Rent.LamportsPerByteYear,
			ExemptionYears:      raw.Rent.ExemptionYears,
			AccountOverhead:     raw.Rent.AccountOverhead,
		}
	}

	seen := make(map[ir.Pubkey]string, len(raw.Accounts))
	for name, acct := range raw.Accounts {
		field := "accounts." + name
		pos := v.LookupPath(cue.MakePath(cue.Str("accounts"), cue.Str(name))).Pos()

		addr, err := resolveAddress(acct, baseDir)
		if err != nil {
			return nil, &Error{Field: field, Message: err.Error(), Pos: pos}
		}
		if other, dup := seen[addr]; dup {
			return nil, &Error{Field: field, Message: fmt.Sprintf("address %s already funded by %s", addr, other), Pos: pos}
		}
		seen[addr] = name

		doc.Accounts = append(doc.Accounts, Allocation{Name: name, Address: addr, Lamports: acct.Lamports})
	}
	slices.SortFunc(doc.Accounts, func(a, b Allocation) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return doc, nil
}

func resolveAddress(acct rawAccount, baseDir string) (ir.Pubkey, error) {
	switch {
	case acct.Address != "" && acct.Keypair != "":
		return ir.Pubkey{}, fmt.Errorf("set address or keypair, not both")
	case acct.Address != "":
		return ir.ParsePubkey(acct.Address)
	case acct.Keypair != "":
		path := acct.Keypair
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		kp, err := ir.LoadKeypair(path)
		if err != nil {
			return ir.Pubkey{}, err
		}
		return kp.Pubkey(), nil
	default:
		return ir.Pubkey{}, fmt.Errorf("address or keypair is required")
	}
}

// Params returns the ledger parameters the document fixes.
func (d *Document) Params() map[string]string {
	return map[string]string{
		store.ParamProgramID:           d.ProgramID.String(),
		store.ParamLamportsPerByteYear: strconv.FormatUint(d.Rent.LamportsPerByteYear, 10),
		store.ParamExemptionYears:      strconv.FormatUint(d.Rent.ExemptionYears, 10),
		store.ParamAccountOverhead:     strconv.FormatUint(d.Rent.AccountOverhead, 10),
	}
}

// Apply writes the document to a ledger with no journal history.
// Funded wallets are set to exactly the listed balance.
func (d *Document) Apply(ctx context.Context, s *store.Store) error {
	last, err := s.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if last > 0 {
		return fmt.Errorf("apply genesis: ledger already has %d journaled transactions", last)
	}

	accounts := make([]ir.Account, len(d.Accounts))
	for i, a := range d.Accounts {
		accounts[i] = ir.Account{Address: a.Address, Owner: ir.SystemID, Lamports: a.Lamports, Data: []byte{}}
	}
	if err := s.PutAccounts(ctx, accounts); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if err := s.SetParams(ctx, d.Params()); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
