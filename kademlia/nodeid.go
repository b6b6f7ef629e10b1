// Package kademlia implements the XOR-metric routing table the node
// uses to locate its peers: 160-bit IDs, k-buckets kept in LRU order
// with a replacement queue for overflow, and bucket splitting.
package kademlia

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/big"
)

// IDBytes is the width of a NodeID: 160 bits.
const IDBytes = 20

// NodeID is a 160-bit opaque identifier, compared by equality and
// ordered by XOR distance to a reference ID.
type NodeID [IDBytes]byte

// NewNodeID generates a fresh NodeID as the SHA-1 of 20
// cryptographically random bytes, per spec §3.
func NewNodeID() (NodeID, error) {
	var seed [IDBytes]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return NodeID{}, fmt.Errorf("kademlia: random seed: %w", err)
	}
	sum := sha1.Sum(seed[:])
	return NodeID(sum), nil
}

// String renders the NodeID as lowercase hex, the wire format used by
// the HTTP API (spec §6).
func (id NodeID) String() string { return hex.EncodeToString(id[:]) }

// Int treats the NodeID as a big-endian unsigned integer, used for
// bucket range comparisons.
func (id NodeID) Int() *big.Int { return new(big.Int).SetBytes(id[:]) }

// NodeIDFromHex parses a hex-encoded NodeID as produced by String.
func NodeIDFromHex(s string) (NodeID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("kademlia: malformed node id: %w", err)
	}
	if len(b) != IDBytes {
		return NodeID{}, fmt.Errorf("kademlia: node id must be %d bytes, got %d", IDBytes, len(b))
	}
	var id NodeID
	copy(id[:], b)
	return id, nil
}

// Distance computes the XOR metric between two IDs as a 160-bit
// unsigned integer, adapted from the node's own xorDistance helper.
func Distance(a, b NodeID) *big.Int {
	var out [IDBytes]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return new(big.Int).SetBytes(out[:])
}
