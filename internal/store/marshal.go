package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/tally/internal/ir"
)

// marshalResult converts IRObject to canonical JSON TEXT for storage.
func marshalResult(result ir.IRObject) (string, error) {
	if result == nil {
		result = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// unmarshalResult parses canonical JSON TEXT to IRObject.
// Large integers survive via json.Number inside IRObject.UnmarshalJSON.
func unmarshalResult(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return obj, nil
}

// marshalJSON encodes structural columns (account metas, signers, logs).
// HTML escaping is disabled so trace lines are stored byte-for-byte.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func marshalMetas(metas []ir.AccountMeta) (string, error) {
	if metas == nil {
		metas = []ir.AccountMeta{}
	}
	s, err := marshalJSON(metas)
	if err != nil {
		return "", fmt.Errorf("marshal accounts: %w", err)
	}
	return s, nil
}

func unmarshalMetas(data string) ([]ir.AccountMeta, error) {
	metas := []ir.AccountMeta{}
	if err := json.Unmarshal([]byte(data), &metas); err != nil {
		return nil, fmt.Errorf("unmarshal accounts: %w", err)
	}
	return metas, nil
}

func marshalSigners(signers []ir.Pubkey) (string, error) {
	if signers == nil {
		signers = []ir.Pubkey{}
	}
	s, err := marshalJSON(signers)
	if err != nil {
		return "", fmt.Errorf("marshal signers: %w", err)
	}
	return s, nil
}

func unmarshalSigners(data string) ([]ir.Pubkey, error) {
	signers := []ir.Pubkey{}
	if err := json.Unmarshal([]byte(data), &signers); err != nil {
		return nil, fmt.Errorf("unmarshal signers: %w", err)
	}
	return signers, nil
}

func marshalLogs(logs []string) (string, error) {
	if logs == nil {
		logs = []string{}
	}
	s, err := marshalJSON(logs)
	if err != nil {
		return "", fmt.Errorf("marshal logs: %w", err)
	}
	return s, nil
}

func unmarshalLogs(data string) ([]string, error) {
	logs := []string{}
	if err := json.Unmarshal([]byte(data), &logs); err != nil {
		return nil, fmt.Errorf("unmarshal logs: %w", err)
	}
	return logs, nil
}

// toLamportsColumn narrows a balance to SQLite's signed INTEGER.
func toLamportsColumn(lamports uint64) (int64, error) {
	if lamports > math.MaxInt64 {
		return 0, fmt.Errorf("lamports %d exceed storable maximum %d", lamports, int64(math.MaxInt64))
	}
	return int64(lamports), nil
}
