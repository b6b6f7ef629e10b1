package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode2"
)

// sigScheme is the fixed signature algorithm for this system:
// Dilithium-2 (circl's "mode2").
var sigScheme = mode2.Scheme()

// sigOpts is the (empty-context) signing/verification options used
// throughout; the system does not use domain-separated contexts.
var sigOpts = &sign.SignatureOpts{}

// SigPublicKey and SigPrivateKey are opaque handles over circl's
// generic sign.PublicKey/sign.PrivateKey, scoped to Dilithium-2.
type SigPublicKey = sign.PublicKey
type SigPrivateKey = sign.PrivateKey

// SigKeypair generates a fresh Dilithium-2 key pair.
func SigKeypair() (SigPrivateKey, SigPublicKey, error) {
	pk, sk, err := sigScheme.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: sig keypair: %w", err)
	}
	return sk, pk, nil
}

// Sign signs msg with sk, returning the raw signature bytes.
func Sign(sk SigPrivateKey, msg []byte) []byte {
	return sigScheme.Sign(sk, msg, sigOpts)
}

// Verify checks that signature is a valid Dilithium-2 signature over
// msg under pk.
func Verify(pk SigPublicKey, msg, signature []byte) bool {
	return sigScheme.Verify(pk, msg, signature, sigOpts)
}

// MarshalSigPublicKey encodes a Dilithium-2 public key to bytes.
func MarshalSigPublicKey(pk SigPublicKey) ([]byte, error) {
	b, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	return b, nil
}

// UnmarshalSigPublicKey decodes a Dilithium-2 public key from bytes.
func UnmarshalSigPublicKey(b []byte) (SigPublicKey, error) {
	pk, err := sigScheme.UnmarshalBinaryPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	return pk, nil
}

// MarshalSigPrivateKey encodes a Dilithium-2 private key to bytes.
func MarshalSigPrivateKey(sk SigPrivateKey) ([]byte, error) {
	b, err := sk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	return b, nil
}

// UnmarshalSigPrivateKey decodes a Dilithium-2 private key from bytes.
func UnmarshalSigPrivateKey(b []byte) (SigPrivateKey, error) {
	sk, err := sigScheme.UnmarshalBinaryPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyShape, err)
	}
	return sk, nil
}
