// Package identity builds user identifiers and the end-to-end message
// envelope on top of the primitives in crypto.
package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
)

// identifierDomain tags the canonical serialization that feeds the
// identifier hash, so it can never collide with an unrelated digest.
const identifierDomain = "KEM-SIG-v1:"

// Identifier computes the UserIdentifier for a (kem_public,
// sig_public) pair: a URL-safe, unpadded base64 encoding of
// SHA-256("KEM-SIG-v1:" || len(kem_pub) || kem_pub || len(sig_pub) || sig_pub),
// with each length a 4-byte big-endian unsigned integer. Identifiers
// are pure functions of the two public keys.
func Identifier(kemPub, sigPub []byte) string {
	buf := make([]byte, 0, len(identifierDomain)+4+len(kemPub)+4+len(sigPub))
	buf = append(buf, identifierDomain...)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kemPub)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, kemPub...)

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sigPub)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, sigPub...)

	sum := sha256.Sum256(buf)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
