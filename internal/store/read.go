package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tally/internal/ir"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ReadAccount returns the account at addr.
// Returns sql.ErrNoRows if the address has never been written.
func (s *Store) ReadAccount(ctx context.Context, addr ir.Pubkey) (ir.Account, error) {
	acct, err := readAccount(ctx, s.db, addr)
	if err == sql.ErrNoRows {
		return ir.Account{}, err
	}
	if err != nil {
		return ir.Account{}, fmt.Errorf("read account %s: %w", addr, err)
	}
	return acct, nil
}

func readAccount(ctx context.Context, q queryer, addr ir.Pubkey) (ir.Account, error) {
	row := q.QueryRowContext(ctx, `
		SELECT address, owner, lamports, data, updated_seq
		FROM accounts
		WHERE address = ?
	`, addr.String())
	return scanAccount(row)
}

// ReadAccounts loads every address that exists. Missing addresses are
// absent from the map; duplicates in addrs are loaded once.
func (s *Store) ReadAccounts(ctx context.Context, addrs []ir.Pubkey) (map[ir.Pubkey]ir.Account, error) {
	out := make(map[ir.Pubkey]ir.Account, len(addrs))
	for _, addr := range addrs {
		if _, ok := out[addr]; ok {
			continue
		}
		acct, err := readAccount(ctx, s.db, addr)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read account %s: %w", addr, err)
		}
		out[addr] = acct
	}
	return out, nil
}

// ListAccounts returns every stored account ordered by address.
// Returns an empty slice (not nil) if the ledger is empty.
func (s *Store) ListAccounts(ctx context.Context) ([]ir.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, owner, lamports, data, updated_seq
		FROM accounts
		ORDER BY address COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []ir.Account{}
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// HasReceipt reports whether a receipt with id is journaled.
func (s *Store) HasReceipt(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM receipts WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check receipt %s: %w", id, err)
	}
	return n > 0, nil
}

// ReadReceipt returns the receipt with id.
// Returns sql.ErrNoRows if it does not exist.
func (s *Store) ReadReceipt(ctx context.Context, id string) (ir.Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE id = ?
	`, id)
	r, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return ir.Receipt{}, err
	}
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("read receipt %s: %w", id, err)
	}
	return r, nil
}

// ListReceipts returns journaled receipts in seq order. If address is
// non-nil only receipts referencing that account are returned.
//
// Ordering: ORDER BY seq ASC, id COLLATE BINARY ASC.
func (s *Store) ListReceipts(ctx context.Context, address *ir.Pubkey) ([]ir.Receipt, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if address == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+receiptColumns+`
			FROM receipts
			ORDER BY seq ASC, id COLLATE BINARY ASC
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+receiptColumns+`
			FROM receipts
			WHERE id IN (SELECT receipt_id FROM receipt_accounts WHERE address = ?)
			ORDER BY seq ASC, id COLLATE BINARY ASC
		`, address.String())
	}
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	receipts := []ir.Receipt{}
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return receipts, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM receipts`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(sc scanner) (ir.Account, error) {
	var (
		acct           ir.Account
		address, owner string
		lamports       int64
	)
	if err := sc.Scan(&address, &owner, &lamports, &acct.Data, &acct.UpdatedSeq); err != nil {
		return ir.Account{}, err
	}

	var err error
	if acct.Address, err = ir.ParsePubkey(address); err != nil {
		return ir.Account{}, fmt.Errorf("account address: %w", err)
	}
	if acct.Owner, err = ir.ParsePubkey(owner); err != nil {
		return ir.Account{}, fmt.Errorf("account owner: %w", err)
	}
	if lamports < 0 {
		return ir.Account{}, fmt.Errorf("account %s: negative lamports %d", address, lamports)
	}
	acct.Lamports = uint64(lamports)
	if acct.Data == nil {
		acct.Data = []byte{}
	}
	return acct, nil
}

const receiptColumns = `id, seq, correlation_id, handler, program_id, accounts, data, signers,
		status, error_kind, error_message, logs, result, compute_units`

func scanReceipt(sc scanner) (ir.Receipt, error) {
	var (
		r                                   ir.Receipt
		programID, errorKind                string
		accountsJSON, signersJSON, logsJSON string
		resultJSON                          string
		computeUnits                        int64
	)
	if err := sc.Scan(
		&r.ID, &r.Seq, &r.CorrelationID, &r.Handler, &programID, &accountsJSON, &r.Data,
		&signersJSON, &r.Status, &errorKind, &r.ErrorMessage, &logsJSON, &resultJSON, &computeUnits,
	); err != nil {
		return ir.Receipt{}, err
	}

	var err error
	if r.ProgramID, err = ir.ParsePubkey(programID); err != nil {
		return ir.Receipt{}, fmt.Errorf("receipt program id: %w", err)
	}
	if r.Accounts, err = unmarshalMetas(accountsJSON); err != nil {
		return ir.Receipt{}, err
	}
	if r.Signers, err = unmarshalSigners(signersJSON); err != nil {
		return ir.Receipt{}, err
	}
	if r.Logs, err = unmarshalLogs(logsJSON); err != nil {
		return ir.Receipt{}, err
	}
	if r.Result, err = unmarshalResult(resultJSON); err != nil {
		return ir.Receipt{}, err
	}
	if r.Data == nil {
		r.Data = []byte{}
	}
	r.ErrorKind = ir.ErrorKind(errorKind)
	r.ComputeUnits = uint64(computeUnits)
	return r, nil
}
