package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/roach88/tally/internal/config"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/vm"
)

// ledger is an open store with the runtime that executes against it.
type ledger struct {
	store     *store.Store
	runtime   *vm.Runtime
	programID ir.Pubkey
}

func (l *ledger) Close() error {
	return l.store.Close()
}

// openStore opens the configured database, wrapping failures as command errors.
func openStore(opts *RootOptions) (*store.Store, error) {
	s, err := store.Open(opts.Config.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", opts.Config.DB), err)
	}
	return s, nil
}

// openLedger opens the store and builds a runtime hosting the counter
// program. Parameters fixed at genesis take precedence over config.
func openLedger(ctx context.Context, opts *RootOptions) (*ledger, error) {
	s, err := openStore(opts)
	if err != nil {
		return nil, err
	}

	params, err := s.Params(ctx)
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read ledger parameters", err)
	}
	programID, rent, err := resolveParams(opts.Config, params)
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "invalid ledger parameters", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt, err := vm.New(ctx, s, []vm.Program{program.New(programID)},
		vm.WithRent(rent),
		vm.WithComputeLimit(opts.Config.ComputeLimit),
		vm.WithLogger(logger),
	)
	if err != nil {
		s.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start runtime", err)
	}

	logger.Debug("ledger opened",
		"db", opts.Config.DB,
		"program_id", programID,
		"compute_limit", opts.Config.ComputeLimit,
	)
	return &ledger{store: s, runtime: rt, programID: programID}, nil
}

// resolveParams overlays stored ledger parameters on the configured ones.
func resolveParams(cfg config.Config, params map[string]string) (ir.Pubkey, vm.Rent, error) {
	programID := cfg.Program()
	if v, ok := params[store.ParamProgramID]; ok {
		pk, err := ir.ParsePubkey(v)
		if err != nil {
			return ir.Pubkey{}, vm.Rent{}, fmt.Errorf("%s: %w", store.ParamProgramID, err)
		}
		programID = pk
	}

	rent := cfg.RentParams()
	fields := []struct {
		key string
		dst *uint64
	}{
		{store.ParamLamportsPerByteYear, &rent.LamportsPerByteYear},
		{store.ParamExemptionYears, &rent.ExemptionYears},
		{store.ParamAccountOverhead, &rent.AccountOverhead},
	}
	for _, f := range fields {
		v, ok := params[f.key]
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return ir.Pubkey{}, vm.Rent{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = n
	}
	return programID, rent, nil
}

// execute signs ix with signers and runs it. A zero nonce is replaced by
// the wall clock so repeated identical commands are distinct messages.
func (l *ledger) execute(ctx context.Context, nonce uint64, ix ir.Instruction, signers ...ir.Keypair) (ir.Receipt, error) {
	if nonce == 0 {
		nonce = uint64(time.Now().UnixNano())
	}
	tx := ir.Transaction{Message: ir.Message{Nonce: nonce, Instruction: ix}}
	if err := tx.Sign(signers...); err != nil {
		return ir.Receipt{}, WrapExitError(ExitCommandError, "failed to sign transaction", err)
	}
	return l.runtime.Execute(ctx, tx)
}

// loadKeypair reads a keypair file, defaulting to the configured one.
func loadKeypair(opts *RootOptions, path string) (ir.Keypair, error) {
	if path == "" {
		path = opts.Config.Keypair
	}
	k, err := ir.LoadKeypair(path)
	if err != nil {
		return ir.Keypair{}, WrapExitError(ExitCommandError, "failed to load keypair", err)
	}
	return k, nil
}

// parseAddress accepts a base58 address or a path to a keypair file.
func parseAddress(s string) (ir.Pubkey, error) {
	if pk, err := ir.ParsePubkey(s); err == nil {
		return pk, nil
	}
	k, err := ir.LoadKeypair(s)
	if err != nil {
		return ir.Pubkey{}, NewExitError(ExitCommandError,
			fmt.Sprintf("%q is neither a base58 address nor a readable keypair file", s))
	}
	return k.Pubkey(), nil
}
