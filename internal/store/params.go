package store

import (
	"context"
	"fmt"
)

// Ledger parameter keys written at genesis.
const (
	ParamProgramID           = "program_id"
	ParamLamportsPerByteYear = "rent.lamports_per_byte_year"
	ParamExemptionYears      = "rent.exemption_years"
	ParamAccountOverhead     = "rent.account_overhead"
)

// SetParams upserts ledger parameters in one transaction.
func (s *Store) SetParams(ctx context.Context, params map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set params: begin tx: %w", err)
	}
	defer tx.Rollback()

	for k, v := range params {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_params (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v); err != nil {
			return fmt.Errorf("set param %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set params: commit: %w", err)
	}
	return nil
}

// Params returns every ledger parameter. Empty (not nil) before genesis.
func (s *Store) Params(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM ledger_params ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query params: %w", err)
	}
	defer rows.Close()

	params := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan param: %w", err)
		}
		params[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate params: %w", err)
	}
	return params, nil
}
