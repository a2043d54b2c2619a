package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/ir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Logs   bool   // print each receipt's program log
	Status string // optional - filter by receipt status
}

// TraceResult holds the journal slice returned by trace.
type TraceResult struct {
	Address  *ir.Pubkey   `json:"address,omitempty"`
	Receipts []ir.Receipt `json:"receipts"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the listed receipts.
type TraceStats struct {
	Total        int    `json:"total"`
	Committed    int    `json:"committed"`
	Failed       int    `json:"failed"`
	ComputeUnits uint64 `json:"compute_units"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [address|keypair]",
		Short: "List journaled transactions",
		Long: `List journaled transactions in execution order.

With an address, only transactions that referenced that account are
listed. Failed transactions appear with their error kind; their account
writes were discarded.

Examples:
  tally trace
  tally trace 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin --logs
  tally trace --status failed --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return runTrace(opts, target, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Logs, "logs", false, "print program logs for each transaction")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (ok|failed)")

	return cmd
}

func runTrace(opts *TraceOptions, target string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Status != "" && opts.Status != ir.StatusOK && opts.Status != ir.StatusFailed {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q: must be ok or failed", opts.Status))
	}

	var filter *ir.Pubkey
	if target != "" {
		addr, err := parseAddress(target)
		if err != nil {
			return err
		}
		filter = &addr
	}

	s, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	all, err := s.ListReceipts(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list receipts", err)
	}

	result := TraceResult{Address: filter, Receipts: []ir.Receipt{}}
	for _, r := range all {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		result.Receipts = append(result.Receipts, r)
		result.Stats.Total++
		result.Stats.ComputeUnits += r.ComputeUnits
		if r.OK() {
			result.Stats.Committed++
		} else {
			result.Stats.Failed++
		}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}
	return outputTraceText(cmd, result, opts.Logs)
}

// outputTraceText renders the receipts as a table, then optionally the
// program logs of each.
func outputTraceText(cmd *cobra.Command, result TraceResult, withLogs bool) error {
	w := cmd.OutOrStdout()

	if len(result.Receipts) == 0 {
		fmt.Fprintln(w, "No transactions found.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Seq", "ID", "Handler", "Status", "Error", "Compute")
	for _, r := range result.Receipts {
		if err := table.Append(
			strconv.FormatInt(r.Seq, 10),
			truncateID(r.ID),
			displayHandler(r.Handler),
			r.Status,
			string(r.ErrorKind),
			strconv.FormatUint(r.ComputeUnits, 10),
		); err != nil {
			return fmt.Errorf("render trace: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render trace: %w", err)
	}

	fmt.Fprintf(w, "\n%d transactions (%d committed, %d failed), %d compute units\n",
		result.Stats.Total, result.Stats.Committed, result.Stats.Failed, result.Stats.ComputeUnits)

	if withLogs {
		for _, r := range result.Receipts {
			fmt.Fprintln(w)
			writeReceiptText(w, r, true)
		}
	}
	return nil
}

// truncateID shortens a receipt id for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "..."
}
