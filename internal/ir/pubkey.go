package ir

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mr-tron/base58"
)

// PubkeySize is the width of every identity in the ledger.
const PubkeySize = 32

// Pubkey identifies an account, a signer, or a program.
// Its text form is base58.
type Pubkey [PubkeySize]byte

// SystemID owns every plain wallet account. It is the all-zero key.
var SystemID Pubkey

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (Pubkey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("parse pubkey %q: %w", s, err)
	}
	if len(raw) != PubkeySize {
		return Pubkey{}, fmt.Errorf("parse pubkey %q: decoded %d bytes, want %d", s, len(raw), PubkeySize)
	}
	var pk Pubkey
	copy(pk[:], raw)
	return pk, nil
}

// MustParsePubkey is like ParsePubkey but panics on error.
// Use only in tests or for compiled-in constants.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromSeed derives a stable key from a label. Used for program ids
// declared by name rather than by keypair.
func PubkeyFromSeed(label string) Pubkey {
	return Pubkey(sha256.Sum256([]byte(label)))
}

func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

// IsZero reports whether pk is the zero key.
func (pk Pubkey) IsZero() bool {
	return pk == Pubkey{}
}

// MarshalText implements encoding.TextMarshaler.
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// Keypair is an ed25519 signing identity.
type Keypair struct {
	private ed25519.PrivateKey
}

// NewKeypair generates a keypair from r. A nil reader uses crypto/rand.
func NewKeypair(r io.Reader) (Keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, fmt.Errorf("keypair seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// Pubkey returns the public half of the keypair.
func (k Keypair) Pubkey() Pubkey {
	var pk Pubkey
	copy(pk[:], k.private.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs msg.
func (k Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// Verify reports whether sig is pk's signature over msg.
func Verify(pk Pubkey, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig)
}

// LoadKeypair reads a keypair file: a JSON array of the 64 secret key bytes.
func LoadKeypair(path string) (Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, fmt.Errorf("read keypair: %w", err)
	}
	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return Keypair{}, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("keypair %s has %d bytes, want %d", path, len(ints), ed25519.PrivateKeySize)
	}
	raw = make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return Keypair{}, fmt.Errorf("keypair %s: byte %d out of range", path, i)
		}
		raw[i] = byte(v)
	}
	return KeypairFromSeed(raw[:ed25519.SeedSize])
}

// SaveKeypair writes k in the format read by LoadKeypair, readable only by the owner.
func SaveKeypair(path string, k Keypair) error {
	ints := make([]int, len(k.private))
	for i, b := range k.private {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return fmt.Errorf("encode keypair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair: %w", err)
	}
	return nil
}
