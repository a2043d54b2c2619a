package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/roach88/tally/internal/ir"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PutAccount inserts or replaces one account.
// The Data slice is stored as a BLOB; nil is stored as an empty BLOB.
func (s *Store) PutAccount(ctx context.Context, acct ir.Account) error {
	if err := putAccount(ctx, s.db, acct); err != nil {
		return fmt.Errorf("put account %s: %w", acct.Address, err)
	}
	return nil
}

func putAccount(ctx context.Context, ex execer, acct ir.Account) error {
	lamports, err := toLamportsColumn(acct.Lamports)
	if err != nil {
		return err
	}
	data := acct.Data
	if data == nil {
		data = []byte{}
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO accounts (address, owner, lamports, data, updated_seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			owner = excluded.owner,
			lamports = excluded.lamports,
			data = excluded.data,
			updated_seq = excluded.updated_seq
	`,
		acct.Address.String(),
		acct.Owner.String(),
		lamports,
		data,
		acct.UpdatedSeq,
	)
	return err
}

// PutAccounts writes accounts in one transaction.
func (s *Store) PutAccounts(ctx context.Context, accounts []ir.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put accounts: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, acct := range accounts {
		if err := putAccount(ctx, tx, acct); err != nil {
			return fmt.Errorf("put account %s: %w", acct.Address, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put accounts: commit: %w", err)
	}
	return nil
}

// Fund credits lamports to addr, creating a system-owned wallet if the
// address holds nothing. Funding happens outside the transaction journal.
func (s *Store) Fund(ctx context.Context, addr ir.Pubkey, lamports uint64) (ir.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Account{}, fmt.Errorf("fund: begin tx: %w", err)
	}
	defer tx.Rollback()

	acct, err := readAccount(ctx, tx, addr)
	switch {
	case err == sql.ErrNoRows:
		acct = ir.Account{Address: addr, Owner: ir.SystemID, Data: []byte{}}
	case err != nil:
		return ir.Account{}, fmt.Errorf("fund %s: %w", addr, err)
	}

	if lamports > math.MaxUint64-acct.Lamports {
		return ir.Account{}, fmt.Errorf("fund %s: balance overflow", addr)
	}
	acct.Lamports += lamports

	if err := putAccount(ctx, tx, acct); err != nil {
		return ir.Account{}, fmt.Errorf("fund %s: %w", addr, err)
	}
	if err := tx.Commit(); err != nil {
		return ir.Account{}, fmt.Errorf("fund: commit: %w", err)
	}
	return acct, nil
}

// WriteReceipt journals a receipt without touching accounts.
// Used for failed transactions.
func (s *Store) WriteReceipt(ctx context.Context, r ir.Receipt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write receipt: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertReceipt(ctx, tx, r); err != nil {
		return fmt.Errorf("write receipt %s: %w", r.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write receipt: commit: %w", err)
	}
	return nil
}

// Commit atomically writes the changed accounts of a successful
// transaction together with its receipt. Either everything lands or
// nothing does.
func (s *Store) Commit(ctx context.Context, accounts []ir.Account, r ir.Receipt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, acct := range accounts {
		if err := putAccount(ctx, tx, acct); err != nil {
			return fmt.Errorf("commit: account %s: %w", acct.Address, err)
		}
	}
	if err := insertReceipt(ctx, tx, r); err != nil {
		return fmt.Errorf("commit: receipt %s: %w", r.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertReceipt writes the receipt row and its per-account index rows.
// A duplicate id fails with a constraint error; receipts are never
// overwritten.
func insertReceipt(ctx context.Context, tx *sql.Tx, r ir.Receipt) error {
	accountsJSON, err := marshalMetas(r.Accounts)
	if err != nil {
		return err
	}
	signersJSON, err := marshalSigners(r.Signers)
	if err != nil {
		return err
	}
	logsJSON, err := marshalLogs(r.Logs)
	if err != nil {
		return err
	}
	resultJSON, err := marshalResult(r.Result)
	if err != nil {
		return err
	}
	if r.ComputeUnits > math.MaxInt64 {
		return fmt.Errorf("compute units %d out of range", r.ComputeUnits)
	}
	data := r.Data
	if data == nil {
		data = []byte{}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts
		(id, seq, correlation_id, handler, program_id, accounts, data, signers,
		 status, error_kind, error_message, logs, result, compute_units,
		 runtime_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Seq,
		r.CorrelationID,
		r.Handler,
		r.ProgramID.String(),
		accountsJSON,
		data,
		signersJSON,
		r.Status,
		string(r.ErrorKind),
		r.ErrorMessage,
		logsJSON,
		resultJSON,
		int64(r.ComputeUnits),
		ir.RuntimeVersion,
		ir.IRVersion,
	)
	if err != nil {
		return err
	}

	for i, meta := range r.Accounts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO receipt_accounts (receipt_id, address, position)
			VALUES (?, ?, ?)
		`, r.ID, meta.Pubkey.String(), i); err != nil {
			return fmt.Errorf("index account %d: %w", i, err)
		}
	}
	return nil
}
