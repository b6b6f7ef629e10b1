package kademlia

import (
	"math/big"
	"sort"
	"sync"
)

// idSpaceSize is 2^160, the exclusive upper bound of the ID space.
func idSpaceSize() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), IDBytes*8)
}

// RoutingTable is an ordered list of k-buckets partitioning the
// 160-bit ID space, rooted at the local node's ID. It starts as a
// single bucket covering the whole space and splits on demand. Guarded
// by a reader-writer lock rather than a plain mutex: FindNeighbors is
// read-heavy (every DHT lookup and replication call walks the table)
// while AddContact/RemoveContact are comparatively rare.
type RoutingTable struct {
	mu      sync.RWMutex
	localID NodeID
	k       int
	buckets []*kbucket
}

// NewRoutingTable builds a table with a single all-covering bucket.
func NewRoutingTable(localID NodeID) *RoutingTable {
	return &RoutingTable{
		localID: localID,
		k:       DefaultK,
		buckets: []*kbucket{newKBucket(big.NewInt(0), idSpaceSize(), DefaultK)},
	}
}

func (rt *RoutingTable) bucketFor(id NodeID) int {
	for i, b := range rt.buckets {
		if b.covers(id) {
			return i
		}
	}
	// Unreachable: the buckets always partition the full space.
	return len(rt.buckets) - 1
}

// AddContact locates the unique bucket covering node.ID and inserts
// it. If that bucket is full and covers the local ID, it is split at
// its midpoint and insertion retried against the resulting half;
// otherwise the candidate is dropped into the bucket's replacement
// queue.
func (rt *RoutingTable) AddContact(n Node) {
	if n.ID == rt.localID {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for {
		i := rt.bucketFor(n.ID)
		b := rt.buckets[i]
		if b.add(n) {
			return
		}
		if !b.covers(rt.localID) {
			// Full and not splittable: candidate stays in the
			// replacement queue (already recorded by b.add above).
			return
		}
		lower, upper := b.split()
		rt.buckets[i] = lower
		rt.buckets = append(rt.buckets, nil)
		copy(rt.buckets[i+2:], rt.buckets[i+1:])
		rt.buckets[i+1] = upper
	}
}

// IsNew reports whether id is not currently held in any bucket's
// active list.
func (rt *RoutingTable) IsNew(id NodeID) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return !rt.buckets[rt.bucketFor(id)].has(id)
}

// RemoveContact removes node from its bucket; if a replacement is
// waiting it is promoted into the freed slot.
func (rt *RoutingTable) RemoveContact(n Node) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.buckets[rt.bucketFor(n.ID)].remove(n.ID)
}

// FindNeighbors walks buckets in order of increasing XOR-distance
// from their range midpoint to target, collects their nodes, sorts
// the result by XOR-distance to target (ties broken by original
// insertion order via a stable sort), and returns at most k.
func (rt *RoutingTable) FindNeighbors(target NodeID, k int) []Node {
	rt.mu.RLock()
	bucketsByMidpoint := make([]*kbucket, len(rt.buckets))
	copy(bucketsByMidpoint, rt.buckets)
	nodesByBucket := make([][]Node, len(rt.buckets))
	for i, b := range rt.buckets {
		nodesByBucket[i] = b.nodeList()
	}
	rt.mu.RUnlock()

	order := make([]int, len(bucketsByMidpoint))
	for i := range order {
		order[i] = i
	}
	targetInt := target.Int()
	sort.SliceStable(order, func(i, j int) bool {
		di := new(big.Int).Xor(bucketsByMidpoint[order[i]].midpoint(), targetInt)
		dj := new(big.Int).Xor(bucketsByMidpoint[order[j]].midpoint(), targetInt)
		return di.Cmp(dj) < 0
	})

	candidates := make([]Node, 0, k*2)
	for _, i := range order {
		for _, n := range nodesByBucket[i] {
			if n.ID == rt.localID {
				continue
			}
			candidates = append(candidates, n)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return Distance(candidates[i].ID, target).Cmp(Distance(candidates[j].ID, target)) < 0
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// K returns the table's bucket capacity / replication factor.
func (rt *RoutingTable) K() int { return rt.k }
