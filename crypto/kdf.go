package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
)

// hkdfInfo is the fixed HKDF info string used to derive the AES key
// from a KEM shared secret. Fixed and unsalted per spec.
const hkdfInfo = "aes_key_derivation"

// ScryptN, ScryptR, ScryptP are the scrypt cost parameters used to
// protect KeyBundle private-key material at rest.
const (
	ScryptN = 1 << 14
	ScryptR = 8
	ScryptP = 1
)

// DeriveKey derives a 32-byte AES key from a KEM shared secret via
// HKDF-SHA256 with no salt and the fixed info string above. Mirrors
// the node's own hkdfBytes helper, generalized to always return a
// 32-byte AES-256 key.
func DeriveKey(sharedSecret []byte) []byte {
	h := hkdf.New(sha256.New, sharedSecret, nil, []byte(hkdfInfo))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		// HKDF-SHA256 can only fail to expand past its output limit,
		// which can't happen for a 32-byte request; treat as impossible.
		panic("crypto: hkdf expand failed: " + err.Error())
	}
	return out
}

// ScryptKey derives a 32-byte key from a password and salt using
// scrypt(N=2^14, r=8, p=1), as specified for KeyBundle encryption.
func ScryptKey(password, salt []byte) ([]byte, error) {
	return scrypt.Key(password, salt, ScryptN, ScryptR, ScryptP, 32)
}
