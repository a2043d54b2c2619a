package cli

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/program"
	"github.com/roach88/tally/internal/testutil"
)

func TestKeygen(t *testing.T) {
	w := newWorkspace(t)

	resp, err := w.runJSON("keygen", "--outfile", w.path("keys/alice.json"))
	require.NoError(t, err)
	d := data(t, resp)
	assert.Equal(t, w.path("keys/alice.json"), d["path"])

	k, err := ir.LoadKeypair(w.path("keys/alice.json"))
	require.NoError(t, err)
	assert.Equal(t, k.Pubkey().String(), d["pubkey"])

	info, err := os.Stat(w.path("keys/alice.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = w.run("keygen", "--outfile", w.path("keys/alice.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--force")

	_, err = w.run("keygen", "--outfile", w.path("keys/alice.json"), "--force")
	require.NoError(t, err)
	again, err := ir.LoadKeypair(w.path("keys/alice.json"))
	require.NoError(t, err)
	assert.NotEqual(t, k.Pubkey(), again.Pubkey())
}

func TestKeygen_DefaultPath(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run("keygen")
	require.NoError(t, err)
	assert.Contains(t, out, w.path(".tally/id.json"))

	_, err = ir.LoadKeypair(w.path(".tally/id.json"))
	require.NoError(t, err)
}

func TestGenesis(t *testing.T) {
	w := newWorkspace(t)
	w.keypair("alice")
	gen := w.write("genesis.cue", `program_seed: "tally/test"
rent: {
	lamports_per_byte_year: 10
	exemption_years:        1
	account_overhead:       0
}
accounts: {
	alice: {keypair: "alice.json", lamports: 1_000}
}
`)

	resp, err := w.runJSON("genesis", gen)
	require.NoError(t, err)
	d := data(t, resp)
	assert.Equal(t, ir.PubkeyFromSeed("tally/test").String(), d["program_id"])
	assert.EqualValues(t, 480, d["record_balance"])

	// The stored program id and rent govern later transactions.
	resp, err = w.runJSON("init", "--payer", w.path("alice.json"), "--slot", w.keypair("counter"), "--payload", "1")
	require.NoError(t, err)
	receipt := data(t, resp)
	assert.Equal(t, ir.PubkeyFromSeed("tally/test").String(), receipt["program_id"])

	resp, err = w.runJSON("show", w.path("alice.json"))
	require.NoError(t, err)
	acct := data(t, resp)["account"].(map[string]any)
	assert.EqualValues(t, 1_000-480, acct["lamports"])

	// Genesis is refused once the journal has history.
	_, err = w.run("genesis", gen)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "already has 1 journaled transactions")
}

func TestGenesis_Invalid(t *testing.T) {
	w := newWorkspace(t)
	gen := w.write("genesis.cue", `accounts: {
	alice: {address: "not-base58!", lamports: 1}
}
`)

	resp, err := w.runJSON("genesis", gen)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "GenesisInvalid", resp["error"].(map[string]any)["code"])
}

func TestFund(t *testing.T) {
	w := newWorkspace(t)
	bob := testutil.Pubkey("bob")

	_, err := w.run("fund", bob.String(), "500")
	require.NoError(t, err)
	resp, err := w.runJSON("fund", bob.String(), "250")
	require.NoError(t, err)
	d := data(t, resp)
	assert.EqualValues(t, 750, d["lamports"])
	assert.Equal(t, ir.SystemID.String(), d["owner"])

	_, err = w.run("fund", bob.String(), "lots")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = w.run("fund", "nowhere", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither a base58 address nor a readable keypair file")
}

func TestCounterLifecycle(t *testing.T) {
	w := fundedLedger(t)
	alice := w.path("alice.json")
	bob := w.keypair("bob")
	counter := w.keypair("counter")

	resp, err := w.runJSON("init", "--payer", alice, "--slot", counter, "--payload", "100")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["trace_id"])
	receipt := data(t, resp)
	assert.Equal(t, program.HandlerInitialize, receipt["handler"])
	assert.EqualValues(t, 1648, receipt["compute_units"])
	assert.Contains(t, receipt["logs"], "Program log: Changed data to: 100")

	resp, err = w.runJSON("show", counter)
	require.NoError(t, err)
	view := data(t, resp)
	record := view["record"].(map[string]any)
	assert.Equal(t, testutil.Pubkey("alice").String(), record["owner"])
	assert.EqualValues(t, 100, record["payload"])
	assert.EqualValues(t, 1_224_960, view["account"].(map[string]any)["lamports"])

	// Payload 100, operand 7: the stored quotient is 14.
	out, err := w.run("mutate", "--record", counter, "--signer", alice, "--operand", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   ok")
	assert.Contains(t, out, "Div: 100 / 7 = 14")

	// A non-owner is rejected and the failure is journaled.
	resp, err = w.runJSON("mutate", "--record", counter, "--signer", bob, "--operand", "3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp["status"])
	cliErr := resp["error"].(map[string]any)
	assert.Equal(t, "Unauthorized", cliErr["code"])
	assert.Equal(t, "failed", cliErr["details"].(map[string]any)["status"])

	resp, err = w.runJSON("show", counter)
	require.NoError(t, err)
	assert.EqualValues(t, 14, data(t, resp)["record"].(map[string]any)["payload"])

	// The slot is taken.
	resp, err = w.runJSON("init", "--payer", alice, "--slot", counter, "--payload", "1")
	require.Error(t, err)
	assert.Equal(t, "AlreadyInitialized", resp["error"].(map[string]any)["code"])
}

func TestInit_SeparateOwner(t *testing.T) {
	w := fundedLedger(t)
	bob := w.keypair("bob")

	resp, err := w.runJSON("init", "--payer", w.path("alice.json"), "--owner", bob, "--payload", "9")
	require.NoError(t, err)
	receipt := data(t, resp)

	signers, ok := receipt["signers"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{
		testutil.Pubkey("alice").String(),
		testutil.Pubkey("bob").String(),
	}, signers)
	assert.Equal(t, testutil.Pubkey("bob").String(), receipt["result"].(map[string]any)["owner"])
}

func TestInit_InsufficientFunds(t *testing.T) {
	w := newWorkspace(t)
	poor := w.keypair("poor")
	_, err := w.run("fund", poor, "1000")
	require.NoError(t, err)

	resp, err := w.runJSON("init", "--payer", poor, "--payload", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "InsufficientFunds", resp["error"].(map[string]any)["code"])

	resp, err = w.runJSON("show", poor)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, data(t, resp)["account"].(map[string]any)["lamports"])
}

func TestMutate_Replay(t *testing.T) {
	w := fundedLedger(t)
	alice := w.path("alice.json")
	counter := w.keypair("counter")

	_, err := w.run("init", "--payer", alice, "--slot", counter, "--payload", "100")
	require.NoError(t, err)
	_, err = w.run("mutate", "--record", counter, "--signer", alice, "--operand", "2", "--nonce", "42")
	require.NoError(t, err)

	// The same signed message is rejected without a second receipt.
	resp, err := w.runJSON("mutate", "--record", counter, "--signer", alice, "--operand", "2", "--nonce", "42")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "AlreadyProcessed", resp["error"].(map[string]any)["code"])

	resp, err = w.runJSON("trace")
	require.NoError(t, err)
	assert.EqualValues(t, 2, data(t, resp)["stats"].(map[string]any)["total"])
}

func TestMutate_RequiresRecord(t *testing.T) {
	w := fundedLedger(t)
	_, err := w.run("mutate", "--signer", w.path("alice.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestMutate_MissingKeypair(t *testing.T) {
	w := fundedLedger(t)
	_, err := w.run("mutate", "--record", testutil.Pubkey("counter").String(), "--signer", w.path("nobody.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load keypair")
}

func TestShow_NotFound(t *testing.T) {
	w := newWorkspace(t)
	resp, err := w.runJSON("show", testutil.Pubkey("ghost").String())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "NotFound", resp["error"].(map[string]any)["code"])
}

func TestShow_Text(t *testing.T) {
	w := fundedLedger(t)
	counter := w.keypair("counter")
	_, err := w.run("init", "--payer", w.path("alice.json"), "--slot", counter, "--payload", "77")
	require.NoError(t, err)

	out, err := w.run("show", counter)
	require.NoError(t, err)
	assert.Contains(t, out, "(counter program)")
	assert.Contains(t, out, "Payload: 77")

	out, err = w.run("show", w.path("alice.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "(system)")
	assert.NotContains(t, out, "Record:")
}

func TestTrace(t *testing.T) {
	w := fundedLedger(t)
	alice := w.path("alice.json")
	bob := w.keypair("bob")
	counter := w.keypair("counter")
	other := w.keypair("other")

	_, err := w.run("init", "--payer", alice, "--slot", counter, "--payload", "100")
	require.NoError(t, err)
	_, err = w.run("init", "--payer", alice, "--slot", other, "--payload", "1")
	require.NoError(t, err)
	_, err = w.run("mutate", "--record", counter, "--signer", bob, "--operand", "3")
	require.Error(t, err)

	t.Run("table", func(t *testing.T) {
		out, err := w.run("trace")
		require.NoError(t, err)
		assert.Contains(t, out, "initialize")
		assert.Contains(t, out, "Unauthorized")
		assert.Contains(t, out, "3 transactions (2 committed, 1 failed)")
	})

	t.Run("by address", func(t *testing.T) {
		resp, err := w.runJSON("trace", counter)
		require.NoError(t, err)
		d := data(t, resp)
		assert.Equal(t, testutil.Pubkey("counter").String(), d["address"])
		assert.EqualValues(t, 2, d["stats"].(map[string]any)["total"])
	})

	t.Run("status filter", func(t *testing.T) {
		resp, err := w.runJSON("trace", "--status", "failed")
		require.NoError(t, err)
		d := data(t, resp)
		receipts := d["receipts"].([]any)
		require.Len(t, receipts, 1)
		assert.Equal(t, "mutate", receipts[0].(map[string]any)["handler"])
		assert.EqualValues(t, 3, receipts[0].(map[string]any)["seq"])
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := w.run("trace", "--status", "pending")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("logs", func(t *testing.T) {
		out, err := w.run("trace", other, "--logs")
		require.NoError(t, err)
		assert.Contains(t, out, "Program log: Changed data to: 1")
		assert.Contains(t, out, "1 transactions (1 committed, 0 failed)")
	})
}

func TestTrace_Empty(t *testing.T) {
	w := newWorkspace(t)
	out, err := w.run("trace")
	require.NoError(t, err)
	assert.Contains(t, out, "No transactions found.")

	resp, err := w.runJSON("trace")
	require.NoError(t, err)
	raw, err := json.Marshal(data(t, resp)["receipts"])
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}
