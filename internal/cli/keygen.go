package cli

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/ir"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	Outfile string
	Force   bool
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing keypair",
		Long: `Generate a new ed25519 keypair and write it as a JSON byte array.

The file is created readable only by the current user. Without --outfile
the configured keypair path is used (default ~/.tally/id.json).

Examples:
  tally keygen
  tally keygen --outfile alice.json
  tally keygen --outfile alice.json --force`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Outfile, "outfile", "o", "", "keypair file to write")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing file")

	return cmd
}

// KeygenResult is the JSON payload of keygen.
type KeygenResult struct {
	Pubkey ir.Pubkey `json:"pubkey"`
	Path   string    `json:"path"`
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	path := opts.Outfile
	if path == "" {
		path = opts.Config.Keypair
	}

	if _, err := os.Stat(path); err == nil && !opts.Force {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s already exists (use --force to overwrite)", path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return WrapExitError(ExitCommandError, "failed to create keypair directory", err)
	}

	k, err := ir.NewKeypair(rand.Reader)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate keypair", err)
	}
	if err := ir.SaveKeypair(path, k); err != nil {
		return WrapExitError(ExitCommandError, "failed to save keypair", err)
	}
	opts.Logger.Debug("keypair written", "path", path, "pubkey", k.Pubkey())

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(KeygenResult{Pubkey: k.Pubkey(), Path: path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote keypair to %s\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "Pubkey: %s\n", k.Pubkey())
	return nil
}
