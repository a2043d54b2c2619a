package cli

import (
	"context"
	"crypto/rand"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Payer   string // payer keypair path (default: configured keypair)
	Owner   string // owner keypair path (default: payer)
	Slot    string // slot address or keypair path (default: fresh address)
	Payload uint64
	Nonce   uint64
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a counter record",
		Long: `Create a record at an empty slot, funded by the payer and owned by the owner.

The payer is charged the rent-exempt minimum for the record. Both payer and
owner sign. The owner is fixed at creation and can never change. Without
--slot a fresh address is generated.

Exit codes:
  0 - Record created
  1 - Transaction failed (journaled with its error kind)
  2 - Command error

Examples:
  tally init --payload 100
  tally init --payer payer.json --owner alice.json --slot record.json --payload 100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payer, "payer", "", "payer keypair file (default: configured keypair)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner keypair file (default: payer)")
	cmd.Flags().StringVar(&opts.Slot, "slot", "", "record address or keypair file (default: new address)")
	cmd.Flags().Uint64Var(&opts.Payload, "payload", 0, "initial payload")
	cmd.Flags().Uint64Var(&opts.Nonce, "nonce", 0, "message nonce (default: current time)")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	payer, err := loadKeypair(opts.RootOptions, opts.Payer)
	if err != nil {
		return err
	}
	owner := payer
	if opts.Owner != "" {
		if owner, err = loadKeypair(opts.RootOptions, opts.Owner); err != nil {
			return err
		}
	}

	var slot ir.Pubkey
	if opts.Slot != "" {
		if slot, err = parseAddress(opts.Slot); err != nil {
			return err
		}
	} else {
		k, err := ir.NewKeypair(rand.Reader)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to generate slot address", err)
		}
		slot = k.Pubkey()
	}

	l, err := openLedger(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	ix := program.NewInitializeInstruction(l.programID, slot, payer.Pubkey(), owner.Pubkey(), opts.Payload)
	signers := []ir.Keypair{payer}
	if owner.Pubkey() != payer.Pubkey() {
		signers = append(signers, owner)
	}

	return reportExecution(opts.RootOptions, cmd, "initialize", func() (ir.Receipt, error) {
		return l.execute(ctx, opts.Nonce, ix, signers...)
	})
}

// reportExecution runs a transaction and prints its receipt. Failed
// transactions still print their journaled receipt before exiting 1.
func reportExecution(opts *RootOptions, cmd *cobra.Command, handler string, run func() (ir.Receipt, error)) error {
	receipt, err := run()
	f := opts.formatter(cmd)

	if err != nil && receipt.ID == "" {
		// Nothing journaled: replays, host faults, signing errors.
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		if kind := ir.KindOf(err); kind != "" {
			_ = f.Error(string(kind), err.Error(), nil)
		}
		return WrapExitError(exitCodeFor(err), handler+" failed", err)
	}

	if perr := f.Receipt(receipt); perr != nil {
		return WrapExitError(ExitCommandError, "failed to write output", perr)
	}
	if err != nil {
		return WrapExitError(ExitFailure, handler+" failed", err)
	}
	return nil
}
