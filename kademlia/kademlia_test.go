package kademlia

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T) NodeID {
	id, err := NewNodeID()
	require.NoError(t, err)
	return id
}

func TestNodeIDHexRoundTrip(t *testing.T) {
	id := mustID(t)
	parsed, err := NodeIDFromHex(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestDistanceIsZeroForSelf(t *testing.T) {
	id := mustID(t)
	require.Equal(t, int64(0), Distance(id, id).Int64())
}

func TestRoutingTableAddAndFindNeighbors(t *testing.T) {
	local := mustID(t)
	rt := NewRoutingTable(local)

	var nodes []Node
	for i := 0; i < 50; i++ {
		id := mustID(t)
		n := Node{ID: id, Host: "127.0.0.1", Port: 9000 + i}
		nodes = append(nodes, n)
		rt.AddContact(n)
	}

	target := mustID(t)
	neighbors := rt.FindNeighbors(target, DefaultK)
	require.LessOrEqual(t, len(neighbors), DefaultK)

	for i := 1; i < len(neighbors); i++ {
		prev := Distance(neighbors[i-1].ID, target)
		cur := Distance(neighbors[i].ID, target)
		require.LessOrEqual(t, prev.Cmp(cur), 0)
	}

	for _, n := range neighbors {
		require.NotEqual(t, local, n.ID)
	}
}

func TestRoutingTableIsNewAndRemove(t *testing.T) {
	local := mustID(t)
	rt := NewRoutingTable(local)

	n := Node{ID: mustID(t), Host: "127.0.0.1", Port: 9001}
	require.True(t, rt.IsNew(n.ID))

	rt.AddContact(n)
	require.False(t, rt.IsNew(n.ID))

	rt.RemoveContact(n)
	require.True(t, rt.IsNew(n.ID))
}

func TestKBucketOverflowGoesToReplacementQueue(t *testing.T) {
	var local NodeID
	local[IDBytes-1] = 0x01
	rt := NewRoutingTable(local)

	// k+1 contacts all in the upper half of the space, away from the
	// local ID: the first k fill the root bucket, the (k+1)th splits it
	// (the root covers the local ID) and then lands in the full upper
	// half, which does not cover the local ID, so it is queued as a
	// replacement instead of being inserted.
	var nodes []Node
	for i := 0; i <= DefaultK; i++ {
		var id NodeID
		id[0] = 0x80
		id[IDBytes-1] = byte(i + 1)
		n := Node{ID: id, Host: "127.0.0.1", Port: 9100 + i}
		nodes = append(nodes, n)
		rt.AddContact(n)
	}
	require.Len(t, rt.buckets, 2)
	upper := rt.buckets[1]
	require.Equal(t, DefaultK, upper.nodes.Len())
	require.Equal(t, 1, upper.replacement.Len())
	require.Equal(t, nodes[DefaultK], upper.replacement.Front().Value.(Node))
	require.True(t, rt.IsNew(nodes[DefaultK].ID))
}
