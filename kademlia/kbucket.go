package kademlia

import (
	"container/list"
	"math/big"
)

// DefaultK is the default bucket capacity (and the replication
// factor used elsewhere in the DHT).
const DefaultK = 20

// kbucket covers the half-open ID range [lo, hi) and holds at most k
// Nodes in LRU order: least-recently-seen at the front, most recent
// at the back. Overflow goes to a replacement queue instead of being
// dropped outright.
type kbucket struct {
	lo, hi *big.Int
	k      int

	nodes       *list.List // of Node, front = least recent
	replacement *list.List // of Node, front = oldest waiting
}

func newKBucket(lo, hi *big.Int, k int) *kbucket {
	return &kbucket{
		lo:          lo,
		hi:          hi,
		k:           k,
		nodes:       list.New(),
		replacement: list.New(),
	}
}

// covers reports whether id falls in this bucket's [lo, hi) range.
func (b *kbucket) covers(id NodeID) bool {
	v := id.Int()
	return v.Cmp(b.lo) >= 0 && v.Cmp(b.hi) < 0
}

func (b *kbucket) find(id NodeID) *list.Element {
	for e := b.nodes.Front(); e != nil; e = e.Next() {
		if e.Value.(Node).ID == id {
			return e
		}
	}
	return nil
}

// add inserts or refreshes node. If already present it moves to the
// tail (most recent). If there is room it is appended. Otherwise it
// is pushed onto the replacement queue and add returns false,
// signalling the bucket is full (a split candidate when it covers the
// local ID).
func (b *kbucket) add(n Node) (inserted bool) {
	if e := b.find(n.ID); e != nil {
		b.nodes.MoveToBack(e)
		return true
	}
	if b.nodes.Len() < b.k {
		b.nodes.PushBack(n)
		return true
	}
	if re := b.findReplacement(n.ID); re != nil {
		b.replacement.MoveToBack(re)
	} else {
		b.replacement.PushBack(n)
	}
	return false
}

func (b *kbucket) findReplacement(id NodeID) *list.Element {
	for e := b.replacement.Front(); e != nil; e = e.Next() {
		if e.Value.(Node).ID == id {
			return e
		}
	}
	return nil
}

// remove drops node from the active list and, if the replacement
// queue is non-empty, promotes its head into the freed slot.
func (b *kbucket) remove(id NodeID) {
	if e := b.find(id); e != nil {
		b.nodes.Remove(e)
	} else {
		return
	}
	if head := b.replacement.Front(); head != nil {
		b.replacement.Remove(head)
		b.nodes.PushBack(head.Value.(Node))
	}
}

// full reports whether the active list is at capacity.
func (b *kbucket) full() bool { return b.nodes.Len() >= b.k }

// has reports whether id is currently held in the active list.
func (b *kbucket) has(id NodeID) bool { return b.find(id) != nil }

// nodeList returns the bucket's active nodes in LRU order.
func (b *kbucket) nodeList() []Node {
	out := make([]Node, 0, b.nodes.Len())
	for e := b.nodes.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Node))
	}
	return out
}

// midpoint returns the midpoint of [lo, hi), used to order buckets by
// distance to a lookup target.
func (b *kbucket) midpoint() *big.Int {
	sum := new(big.Int).Add(b.lo, b.hi)
	return sum.Rsh(sum, 1)
}

// split divides the bucket into two halves at its midpoint, carrying
// over existing nodes (and replacement-queue entries) into whichever
// half now covers them.
func (b *kbucket) split() (lower, upper *kbucket) {
	mid := b.midpoint()
	lower = newKBucket(b.lo, mid, b.k)
	upper = newKBucket(mid, b.hi, b.k)

	for _, n := range b.nodeList() {
		if lower.covers(n.ID) {
			lower.add(n)
		} else {
			upper.add(n)
		}
	}
	for e := b.replacement.Front(); e != nil; e = e.Next() {
		n := e.Value.(Node)
		if lower.covers(n.ID) {
			lower.add(n)
		} else {
			upper.add(n)
		}
	}
	return lower, upper
}
