package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <address|keypair>",
		Short: "Display an account",
		Long: `Display an account's balance and owner. Accounts owned by the counter
program are decoded as records.

Examples:
  tally show 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin
  tally show record.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	return cmd
}

// RecordView is a decoded counter record.
type RecordView struct {
	Owner   ir.Pubkey `json:"owner"`
	Payload uint64    `json:"payload"`
}

// ShowResult is the JSON payload of show.
type ShowResult struct {
	Account ir.Account  `json:"account"`
	Record  *RecordView `json:"record,omitempty"`
}

func runShow(opts *ShowOptions, target string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	addr, err := parseAddress(target)
	if err != nil {
		return err
	}

	l, err := openLedger(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	acct, err := l.store.ReadAccount(ctx, addr)
	if errors.Is(err, sql.ErrNoRows) {
		_ = opts.formatter(cmd).Error("NotFound", fmt.Sprintf("account %s not found", addr), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("account %s not found", addr))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read account", err)
	}

	result := ShowResult{Account: acct}
	if acct.Owner == l.programID {
		rec, err := program.DecodeRecord(acct.Data)
		if err != nil {
			opts.Logger.Warn("program-owned account is not a record", "address", addr, "error", err)
		} else {
			result.Record = &RecordView{Owner: rec.Owner, Payload: rec.Payload}
		}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Account %s\n", acct.Address)
	fmt.Fprintf(w, "  Owner:     %s\n", ownerLabel(acct.Owner, l.programID))
	fmt.Fprintf(w, "  Lamports:  %d\n", acct.Lamports)
	fmt.Fprintf(w, "  Data:      %d bytes\n", len(acct.Data))
	fmt.Fprintf(w, "  Updated:   seq %d\n", acct.UpdatedSeq)
	if result.Record != nil {
		fmt.Fprintln(w, "  Record:")
		fmt.Fprintf(w, "    Owner:   %s\n", result.Record.Owner)
		fmt.Fprintf(w, "    Payload: %d\n", result.Record.Payload)
	}
	return nil
}

func ownerLabel(owner, programID ir.Pubkey) string {
	switch owner {
	case ir.SystemID:
		return fmt.Sprintf("%s (system)", owner)
	case programID:
		return fmt.Sprintf("%s (counter program)", owner)
	default:
		return owner.String()
	}
}
