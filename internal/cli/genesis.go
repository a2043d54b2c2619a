package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/genesis"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
	"github.com/roach88/tally/internal/vm"
)

// GenesisOptions holds flags for the genesis command.
type GenesisOptions struct {
	*RootOptions
}

// NewGenesisCommand creates the genesis command.
func NewGenesisCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenesisOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "genesis <file.cue>",
		Short: "Initialize a ledger from a genesis document",
		Long: `Validate a CUE genesis document and apply it to the ledger.

The document fixes the program id and rent parameters for the life of the
ledger and funds the listed wallets. A ledger that has already journaled
transactions is refused.

Examples:
  tally genesis genesis.cue
  tally genesis genesis.cue --db ./ledger.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenesis(opts, args[0], cmd)
		},
	}

	return cmd
}

// GenesisResult is the JSON payload of genesis.
type GenesisResult struct {
	ProgramID     ir.Pubkey            `json:"program_id"`
	Rent          vm.Rent              `json:"rent"`
	RecordBalance uint64               `json:"record_balance"`
	Accounts      []genesis.Allocation `json:"accounts"`
}

func runGenesis(opts *GenesisOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	doc, err := genesis.Load(path)
	if err != nil {
		var gerr *genesis.Error
		if errors.As(err, &gerr) {
			_ = f.Error("GenesisInvalid", gerr.Error(), nil)
			return WrapExitError(ExitFailure, "invalid genesis document", err)
		}
		return WrapExitError(ExitCommandError, "failed to load genesis", err)
	}

	s, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := doc.Apply(ctx, s); err != nil {
		return WrapExitError(ExitCommandError, "failed to apply genesis", err)
	}
	opts.Logger.Info("genesis applied", "program_id", doc.ProgramID, "accounts", len(doc.Accounts))

	result := GenesisResult{
		ProgramID:     doc.ProgramID,
		Rent:          doc.Rent,
		RecordBalance: doc.Rent.MinimumBalance(program.RecordSize),
		Accounts:      doc.Accounts,
	}
	if opts.Format == "json" {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Genesis applied to %s\n", opts.Config.DB)
	fmt.Fprintf(w, "  Program:        %s\n", result.ProgramID)
	fmt.Fprintf(w, "  Record balance: %d lamports\n", result.RecordBalance)
	for _, a := range result.Accounts {
		fmt.Fprintf(w, "  %-14s  %s  %d lamports\n", a.Name, a.Address, a.Lamports)
	}
	return nil
}
