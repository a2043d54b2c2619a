package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/testutil"
)

// workspace is a scratch HOME with a ledger database and keypair files.
type workspace struct {
	t   *testing.T
	dir string
	db  string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return &workspace{t: t, dir: dir, db: filepath.Join(dir, "tally.db")}
}

// path returns name inside the workspace.
func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

// keypair writes the stable test keypair for label to <label>.json.
func (w *workspace) keypair(label string) string {
	w.t.Helper()
	path := w.path(label + ".json")
	require.NoError(w.t, ir.SaveKeypair(path, testutil.Keypair(label)))
	return path
}

func (w *workspace) write(name, content string) string {
	w.t.Helper()
	path := w.path(name)
	require.NoError(w.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(w.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the root command against the workspace database and
// returns stdout.
func (w *workspace) run(args ...string) (string, error) {
	w.t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--db", w.db))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// runJSON executes with --format json and decodes the response.
func (w *workspace) runJSON(args ...string) (map[string]any, error) {
	w.t.Helper()
	out, err := w.run(append(args, "--format", "json")...)
	var resp map[string]any
	require.NoError(w.t, json.Unmarshal([]byte(out), &resp), "stdout: %s", out)
	return resp, err
}

// data returns the response's data object.
func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return d
}

// fundedLedger applies a genesis funding alice with 10,000,000 lamports.
func fundedLedger(t *testing.T) *workspace {
	t.Helper()
	w := newWorkspace(t)
	w.keypair("alice")
	gen := w.write("genesis.cue", `accounts: {
	alice: {keypair: "alice.json", lamports: 10_000_000}
}
`)
	_, err := w.run("genesis", gen)
	require.NoError(t, err)
	return w
}
