package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// nonceSize is the standard GCM nonce length.
const nonceSize = 12

// gcm builds an AES-256-GCM AEAD from a 32-byte key. Adapted from the
// node's own crypto.go gcm() helper.
func gcm(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	return aead, nil
}

// Encrypt seals plaintext under key with a freshly generated 12-byte
// nonce, returning (ciphertext, nonce).
func Encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := gcm(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: nonce generation: %w", err)
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext under key and nonce, returning
// ErrDecrypt on tag mismatch.
func Decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := gcm(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
