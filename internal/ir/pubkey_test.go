package ir

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubkeyBase58RoundTrip(t *testing.T) {
	pk := PubkeyFromSeed("record")

	parsed, err := ParsePubkey(pk.String())
	require.NoError(t, err)
	assert.Equal(t, pk, parsed)
}

func TestParsePubkeyKnownAddress(t *testing.T) {
	// The all-zero key is 32 '1' characters in base58.
	pk, err := ParsePubkey("11111111111111111111111111111111")
	require.NoError(t, err)
	assert.True(t, pk.IsZero())
	assert.Equal(t, SystemID, pk)
}

func TestParsePubkeyErrors(t *testing.T) {
	_, err := ParsePubkey("0OIl") // not in the base58 alphabet
	assert.Error(t, err)

	_, err = ParsePubkey("2g") // valid base58, wrong length
	assert.Error(t, err)

	assert.Panics(t, func() { MustParsePubkey("bad!") })
}

func TestPubkeyJSON(t *testing.T) {
	pk := PubkeyFromSeed("owner")

	data, err := json.Marshal(map[string]Pubkey{"owner": pk})
	require.NoError(t, err)
	assert.Equal(t, `{"owner":"`+pk.String()+`"}`, string(data))

	var back map[string]Pubkey
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, pk, back["owner"])
}

func TestKeypairFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)

	k1, err := KeypairFromSeed(seed)
	require.NoError(t, err)
	k2, err := KeypairFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, k1.Pubkey(), k2.Pubkey())

	_, err = KeypairFromSeed([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNewKeypairSignVerify(t *testing.T) {
	k, err := NewKeypair(nil)
	require.NoError(t, err)

	sig := k.Sign([]byte("hello"))
	assert.True(t, Verify(k.Pubkey(), []byte("hello"), sig))
	assert.False(t, Verify(k.Pubkey(), []byte("hello!"), sig))
	assert.False(t, Verify(k.Pubkey(), []byte("hello"), sig[:10]))
}

func TestSaveLoadKeypair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.json")
	k, err := KeypairFromSeed(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	require.NoError(t, SaveKeypair(path, k))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, k.Pubkey(), loaded.Pubkey())
}

func TestLoadKeypairErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadKeypair(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	short := filepath.Join(dir, "short.json")
	require.NoError(t, os.WriteFile(short, []byte(`[1,2,3]`), 0o600))
	_, err = LoadKeypair(short)
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`not json`), 0o600))
	_, err = LoadKeypair(garbage)
	assert.Error(t, err)
}
