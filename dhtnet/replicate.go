package dhtnet

import (
	"crypto/sha1"
	"time"

	"github.com/hoshizora/meshnode/kademlia"
)

// RemoteStorer issues a store RPC against a remote node, returning
// whether it was acknowledged. transport/httpapi's client implements
// this over the wire protocol in spec §6.
type RemoteStorer interface {
	RemoteStore(n kademlia.Node, key string, value []byte) bool
}

// KeyToNodeID maps an arbitrary DHT key to a point in the 160-bit ID
// space it is replicated around: the key's bytes directly if they
// already form a valid NodeID (hex-encoded), otherwise its SHA-1.
func KeyToNodeID(key string) kademlia.NodeID {
	if id, err := kademlia.NodeIDFromHex(key); err == nil {
		return id
	}
	return kademlia.NodeID(sha1.Sum([]byte(key)))
}

// SetDigest replicates (key, value) to the nodes nearest it: it
// stores locally when closer to the key than the farthest of the
// nearest neighbors (or when there are no neighbors at all), then
// issues a remote store to each neighbor. It succeeds iff at least
// one remote store acknowledged, or there were no neighbors to ask.
func (s *Service) SetDigest(remote RemoteStorer, key string, value []byte) bool {
	target := KeyToNodeID(key)
	neighbors := s.RT.FindNeighbors(target, s.RT.K())

	if len(neighbors) == 0 {
		s.KV.Set(key, value, time.Now())
		return true
	}

	farthest := neighbors[len(neighbors)-1]
	if kademlia.Distance(s.Local.ID, target).Cmp(kademlia.Distance(farthest.ID, target)) < 0 {
		s.KV.Set(key, value, time.Now())
	}

	acked := false
	for _, n := range neighbors {
		if remote.RemoteStore(n, key, value) {
			acked = true
		}
	}
	return acked
}
