package dhtnet

import (
	"time"

	"github.com/hoshizora/meshnode/kademlia"
)

// DefaultMaxDepth bounds the iterative find_value recursion.
const DefaultMaxDepth = 5

// RemoteFinder issues a find_value RPC against a remote node.
// transport/httpapi's client implements this over the wire protocol
// in spec §6.
type RemoteFinder interface {
	RemoteFindValue(n kademlia.Node, key string) (value []byte, neighbors []kademlia.Node, err error)
}

// FindValue performs the client-side iterative lookup described in
// spec §4.4: query the local peer first, then recurse into unvisited
// neighbors returned by remote peers, depth-bounded by maxDepth,
// terminating on the first hit or once every reachable node has been
// exhausted.
func (s *Service) FindValue(remote RemoteFinder, key string, maxDepth int) ([]byte, bool) {
	if v, ok := s.KV.Get(key, time.Now()); ok {
		return v, true
	}

	visited := map[kademlia.NodeID]bool{s.Local.ID: true}
	target := KeyToNodeID(key)
	frontier := s.RT.FindNeighbors(target, s.RT.K())
	return recurseFindValue(remote, key, frontier, visited, 1, maxDepth)
}

func recurseFindValue(remote RemoteFinder, key string, frontier []kademlia.Node, visited map[kademlia.NodeID]bool, depth, maxDepth int) ([]byte, bool) {
	if depth > maxDepth {
		return nil, false
	}
	for _, n := range frontier {
		if visited[n.ID] {
			continue
		}
		visited[n.ID] = true

		value, neighbors, err := remote.RemoteFindValue(n, key)
		if err != nil {
			continue
		}
		if value != nil {
			return value, true
		}

		var next []kademlia.Node
		for _, nb := range neighbors {
			if !visited[nb.ID] {
				next = append(next, nb)
			}
		}
		if v, ok := recurseFindValue(remote, key, next, visited, depth+1, maxDepth); ok {
			return v, true
		}
	}
	return nil, false
}
