package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
)

// MutateOptions holds flags for the mutate command.
type MutateOptions struct {
	*RootOptions
	Record  string // record address or keypair path
	Signer  string // signer keypair path (default: configured keypair)
	Operand uint32
	Nonce   uint64
}

// NewMutateCommand creates the mutate command.
func NewMutateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MutateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mutate",
		Short: "Apply an operand to a counter record",
		Long: `Apply an operand to a record owned by the signer.

The program computes payload + operand*2, payload - operand,
payload * operand, and payload / operand (saturating, with division by
zero retaining the payload). Only the quotient is stored. Every result is
written to the transaction's program log.

Exit codes:
  0 - Record updated
  1 - Transaction failed (journaled with its error kind)
  2 - Command error

Examples:
  tally mutate --record 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin --operand 7
  tally mutate --record record.json --signer alice.json --operand 0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Record, "record", "", "record address or keypair file (required)")
	cmd.Flags().StringVar(&opts.Signer, "signer", "", "signer keypair file (default: configured keypair)")
	cmd.Flags().Uint32Var(&opts.Operand, "operand", 0, "operand")
	cmd.Flags().Uint64Var(&opts.Nonce, "nonce", 0, "message nonce (default: current time)")
	_ = cmd.MarkFlagRequired("record")

	return cmd
}

func runMutate(opts *MutateOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	record, err := parseAddress(opts.Record)
	if err != nil {
		return err
	}
	signer, err := loadKeypair(opts.RootOptions, opts.Signer)
	if err != nil {
		return err
	}

	l, err := openLedger(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	ix := program.NewMutateInstruction(l.programID, record, signer.Pubkey(), opts.Operand)
	return reportExecution(opts.RootOptions, cmd, "mutate", func() (ir.Receipt, error) {
		return l.execute(ctx, opts.Nonce, ix, signer)
	})
}
