package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// FundOptions holds flags for the fund command.
type FundOptions struct {
	*RootOptions
}

// NewFundCommand creates the fund command.
func NewFundCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FundOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fund <address|keypair> <lamports>",
		Short: "Credit lamports to a wallet",
		Long: `Credit lamports to a system-owned wallet, creating it if needed.

Funding is a host operation outside the journal, like genesis.

Examples:
  tally fund 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin 5000000
  tally fund ~/.tally/id.json 10000000`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFund(opts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runFund(opts *FundOptions, target, amount string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	addr, err := parseAddress(target)
	if err != nil {
		return err
	}
	lamports, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid lamports %q: must be an unsigned integer", amount))
	}

	s, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	acct, err := s.Fund(ctx, addr, lamports)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fund account", err)
	}
	opts.Logger.Info("account funded", "address", addr, "credited", lamports, "balance", acct.Lamports)

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(acct)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Funded %s: balance %d lamports\n", addr, acct.Lamports)
	return nil
}
