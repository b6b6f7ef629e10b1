package dhtnet

import (
	"time"

	"github.com/hoshizora/meshnode/kademlia"
)

// KnownNodesStore persists contacts the routing table has ever
// welcomed, so a restart can repopulate the table without a fresh
// round of pings.
type KnownNodesStore interface {
	StoreNode(n kademlia.Node, lastSeen time.Time) error
	GetKnownNodes(maxAge time.Duration) ([]kademlia.Node, error)
}

// Service is the DHT's six remote operations plus replication,
// wired to a routing table, a local KV store, and durable known-node
// storage. It has no transport opinions; transport/httpapi adapts it
// to the wire protocol in spec §6.
type Service struct {
	Local kademlia.Node
	RT    *kademlia.RoutingTable
	KV    *Store
	Known KnownNodesStore
}

// NewService builds a DHT service for the local node.
func NewService(local kademlia.Node, rt *kademlia.RoutingTable, kv *Store, known KnownNodesStore) *Service {
	return &Service{Local: local, RT: rt, KV: kv, Known: known}
}

// welcomeIfNew adds src to the routing table only if it is not
// already held, and records it in durable known-node storage when it
// is added. Ping-only refreshes (already-known contacts) do not incur
// a storage write.
func (s *Service) welcomeIfNew(src kademlia.Node) {
	if !s.RT.IsNew(src.ID) {
		return
	}
	s.RT.AddContact(src)
	if s.Known != nil {
		_ = s.Known.StoreNode(src, time.Now())
	}
}

// ID returns the local node id.
func (s *Service) ID() kademlia.NodeID { return s.Local.ID }

// Ping welcomes src and returns the local id.
func (s *Service) Ping(src kademlia.Node) kademlia.NodeID {
	s.welcomeIfNew(src)
	return s.Local.ID
}

// StoreOp welcomes src and writes (key, value, now) into the KV
// store, replacing any prior value.
func (s *Service) StoreOp(src kademlia.Node, key string, value []byte) {
	s.welcomeIfNew(src)
	s.KV.Set(key, value, time.Now())
}

// FindNode welcomes src and returns up to k nearest nodes to target.
func (s *Service) FindNode(src kademlia.Node, target kademlia.NodeID) []kademlia.Node {
	s.welcomeIfNew(src)
	return s.RT.FindNeighbors(target, s.RT.K())
}

// FindValueRPC welcomes src and returns the locally stored value for
// key if present and unexpired; otherwise the k nearest nodes to
// target, the lookup id the caller derived from key (see KeyToNodeID).
func (s *Service) FindValueRPC(src kademlia.Node, key string, target kademlia.NodeID) ([]byte, []kademlia.Node) {
	s.welcomeIfNew(src)
	if v, ok := s.KV.Get(key, time.Now()); ok {
		return v, nil
	}
	return nil, s.RT.FindNeighbors(target, s.RT.K())
}

// Bootstrap performs the symmetric bootstrap handshake: the caller's
// node is welcomed just as any other remote call would, and the
// caller is expected to reciprocate by calling Bootstrap (or Ping)
// back against this node's address.
func (s *Service) Bootstrap(src kademlia.Node) {
	s.welcomeIfNew(src)
}

// RestoreKnownNodes repopulates the routing table from durable
// storage on startup, skipping the local node's own id and adding
// restored nodes without a verifying ping (spec §4.4).
func (s *Service) RestoreKnownNodes(maxAge time.Duration) error {
	if s.Known == nil {
		return nil
	}
	nodes, err := s.Known.GetKnownNodes(maxAge)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if n.ID == s.Local.ID {
			continue
		}
		s.RT.AddContact(n)
	}
	return nil
}
