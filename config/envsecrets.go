package config

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// envMagic tags the local secrets file so a bad path or unrelated
// file is rejected early rather than failing deep in AEAD decryption.
var envMagic = []byte("MESH1")

// NodeSecrets holds local ambient secrets unrelated to the user's
// identity KeyBundle — currently just a per-node random seed from
// which the LAN discovery identity is derived, so that identity stays
// the same across restarts.
type NodeSecrets struct {
	DiscoverySeed [32]byte `json:"-"`
	DiscoverySeedB64 string `json:"discovery_seed_b64"`
}

// kdf derives a 32-byte key from a passphrase and salt using
// Argon2id, the same parameters the node uses for its env.enc.
func kdf(pass, salt []byte) []byte {
	return argon2.IDKey(pass, salt, 2, 64*1024, 1, 32)
}

// CreateNodeSecrets generates fresh NodeSecrets and seals them to
// path under passphrase.
func CreateNodeSecrets(path string, passphrase []byte) (*NodeSecrets, error) {
	var s NodeSecrets
	if _, err := rand.Read(s.DiscoverySeed[:]); err != nil {
		return nil, fmt.Errorf("config: generate discovery seed: %w", err)
	}
	s.DiscoverySeedB64 = encodeSeed(s.DiscoverySeed)
	if err := sealNodeSecrets(path, passphrase, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadNodeSecrets decrypts NodeSecrets from path under passphrase.
func LoadNodeSecrets(path string, passphrase []byte) (*NodeSecrets, error) {
	return openNodeSecrets(path, passphrase)
}

func encodeSeed(seed [32]byte) string {
	return fmt.Sprintf("%x", seed[:])
}

func sealNodeSecrets(path string, pass []byte, sec *NodeSecrets) error {
	plain, err := json.Marshal(sec)
	if err != nil {
		return fmt.Errorf("config: marshal node secrets: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("config: generate salt: %w", err)
	}
	key := kdf(pass, salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("config: build aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("config: generate nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plain, nil)

	out := make([]byte, 0, len(envMagic)+16+len(nonce)+4+len(ct))
	out = append(out, envMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	var lbuf [4]byte
	binary.BigEndian.PutUint32(lbuf[:], uint32(len(plain)))
	out = append(out, lbuf[:]...)
	out = append(out, ct...)

	return os.WriteFile(path, out, 0o600)
}

func openNodeSecrets(path string, pass []byte) (*NodeSecrets, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read node secrets: %w", err)
	}
	minLen := len(envMagic) + 16 + chacha20poly1305.NonceSizeX + 4
	if len(b) < minLen {
		return nil, errors.New("config: node secrets file too short")
	}
	if string(b[:len(envMagic)]) != string(envMagic) {
		return nil, errors.New("config: bad node secrets magic")
	}

	offset := len(envMagic)
	salt := b[offset : offset+16]
	offset += 16
	nonce := b[offset : offset+chacha20poly1305.NonceSizeX]
	offset += chacha20poly1305.NonceSizeX
	offset += 4 // skip plaintext length prefix
	ct := b[offset:]

	key := kdf(pass, salt)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("config: build aead: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errors.New("config: node secrets decrypt failed (wrong passphrase?)")
	}

	var sec NodeSecrets
	if err := json.Unmarshal(plain, &sec); err != nil {
		return nil, fmt.Errorf("config: unmarshal node secrets: %w", err)
	}
	// DiscoverySeed is deliberately excluded from JSON (json:"-") so it
	// never appears twice in the sealed plaintext; reconstruct it here
	// from the hex string that did get marshaled.
	seed, err := hex.DecodeString(sec.DiscoverySeedB64)
	if err != nil || len(seed) != len(sec.DiscoverySeed) {
		return nil, errors.New("config: bad discovery seed encoding")
	}
	copy(sec.DiscoverySeed[:], seed)
	return &sec, nil
}
