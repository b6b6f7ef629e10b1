// Package crypto wraps the primitives the rest of the node builds on:
// Kyber-512 for key encapsulation, Dilithium-2 for signatures,
// AES-256-GCM for symmetric encryption, and the KDFs that tie them
// together.
package crypto

import "errors"

// ErrAuthentication is returned when a password or keycheck fails to
// verify before any private key material is touched.
var ErrAuthentication = errors.New("crypto: authentication failed")

// ErrDecrypt is returned on AEAD tag mismatch.
var ErrDecrypt = errors.New("crypto: decryption failed")

// ErrSignature is returned when a signature fails to verify.
var ErrSignature = errors.New("crypto: signature verification failed")

// ErrIdentity is returned when a recomputed identifier does not match
// the one claimed by a message.
var ErrIdentity = errors.New("crypto: identity mismatch")

// ErrKeyShape is returned for malformed key material (wrong length,
// bad encoding).
var ErrKeyShape = errors.New("crypto: malformed key material")
