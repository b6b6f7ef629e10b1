package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber512"
)

// kemScheme is the fixed KEM algorithm for this system: Kyber-512.
var kemScheme = kyber512.Scheme()

// KEMPublicKey and KEMPrivateKey are opaque handles over circl's
// generic kem.PublicKey/kem.PrivateKey, scoped to Kyber-512.
type KEMPublicKey = kem.PublicKey
type KEMPrivateKey = kem.PrivateKey

// KEMKeypair generates a fresh Kyber-512 key pair.
func KEMKeypair() (KEMPrivateKey, KEMPublicKey, error) {
	pk, sk, err := kemScheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: kem keypair: %w", err)
	}
	return sk, pk, nil
}

// KEMEncapsulate produces a fresh shared secret and its ciphertext
// under the recipient's public key.
func KEMEncapsulate(pk KEMPublicKey) (sharedSecret, ciphertext []byte, err error) {
	ct, ss, err := kemScheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: kem encapsulate: %w", err)
	}
	return ss, ct, nil
}

// KEMDecapsulate recovers the shared secret from a ciphertext using
// the recipient's private key.
func KEMDecapsulate(sk KEMPrivateKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != kemScheme.CiphertextSize() {
		return nil, fmt.Errorf("%w: kem ciphertext size", ErrKeyShape)
	}
	ss, err := kemScheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: kem decapsulate: %w", err)
	}
	return ss, nil
}

// MarshalKEMPublicKey encodes a Kyber-512 public key to bytes.
func MarshalKEMPublicKey(pk KEMPublicKey) ([]byte, error) {
	b, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	return b, nil
}

// UnmarshalKEMPublicKey decodes a Kyber-512 public key from bytes.
func UnmarshalKEMPublicKey(b []byte) (KEMPublicKey, error) {
	pk, err := kemScheme.UnmarshalBinaryPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	return pk, nil
}

// MarshalKEMPrivateKey encodes a Kyber-512 private key to bytes.
func MarshalKEMPrivateKey(sk KEMPrivateKey) ([]byte, error) {
	b, err := sk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	return b, nil
}

// UnmarshalKEMPrivateKey decodes a Kyber-512 private key from bytes.
func UnmarshalKEMPrivateKey(b []byte) (KEMPrivateKey, error) {
	sk, err := kemScheme.UnmarshalBinaryPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	return sk, nil
}
