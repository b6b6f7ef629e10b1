package dhtnet

import (
	"testing"
	"time"

	"github.com/hoshizora/meshnode/kademlia"
	"github.com/stretchr/testify/require"
)

type fakeKnownNodes struct {
	nodes []kademlia.Node
}

func (f *fakeKnownNodes) StoreNode(n kademlia.Node, lastSeen time.Time) error {
	f.nodes = append(f.nodes, n)
	return nil
}

func (f *fakeKnownNodes) GetKnownNodes(maxAge time.Duration) ([]kademlia.Node, error) {
	return f.nodes, nil
}

func newTestService(t *testing.T) *Service {
	id, err := kademlia.NewNodeID()
	require.NoError(t, err)
	local := kademlia.Node{ID: id, Host: "127.0.0.1", Port: 9000}
	return NewService(local, kademlia.NewRoutingTable(id), NewStore(), &fakeKnownNodes{})
}

func TestStoreTTLExpiry(t *testing.T) {
	s := NewStore()
	past := time.Now().Add(-DefaultTTL - time.Hour)
	s.Set("k", []byte("v"), past)

	_, ok := s.Get("k", time.Now())
	require.False(t, ok)
}

func TestWelcomeIfNewOnlyAddsOnce(t *testing.T) {
	svc := newTestService(t)
	peerID, err := kademlia.NewNodeID()
	require.NoError(t, err)
	peer := kademlia.Node{ID: peerID, Host: "127.0.0.1", Port: 9001}

	svc.welcomeIfNew(peer)
	require.False(t, svc.RT.IsNew(peer.ID))

	known := svc.Known.(*fakeKnownNodes)
	require.Len(t, known.nodes, 1)

	svc.welcomeIfNew(peer)
	require.Len(t, known.nodes, 1)
}

func TestStoreOpAndFindValueRPC(t *testing.T) {
	svc := newTestService(t)
	caller := kademlia.Node{ID: mustIDT(t), Host: "127.0.0.1", Port: 9002}

	svc.StoreOp(caller, "hello", []byte("world"))

	value, nodes := svc.FindValueRPC(caller, "hello", KeyToNodeID("hello"))
	require.Equal(t, []byte("world"), value)
	require.Nil(t, nodes)
}

func mustIDT(t *testing.T) kademlia.NodeID {
	id, err := kademlia.NewNodeID()
	require.NoError(t, err)
	return id
}

type fakeStorer struct {
	calls int
	ack   bool
}

func (f *fakeStorer) RemoteStore(n kademlia.Node, key string, value []byte) bool {
	f.calls++
	return f.ack
}

func TestSetDigestStoresLocallyWhenNoNeighbors(t *testing.T) {
	svc := newTestService(t)
	ok := svc.SetDigest(&fakeStorer{ack: false}, "orphan-key", []byte("v"))
	require.True(t, ok)

	v, found := svc.KV.Get("orphan-key", time.Now())
	require.True(t, found)
	require.Equal(t, []byte("v"), v)
}

func TestSetDigestSucceedsOnlyWithAck(t *testing.T) {
	svc := newTestService(t)
	for i := 0; i < 5; i++ {
		svc.RT.AddContact(kademlia.Node{ID: mustIDT(t), Host: "127.0.0.1", Port: 9100 + i})
	}

	storer := &fakeStorer{ack: false}
	ok := svc.SetDigest(storer, "some-key", []byte("v"))
	require.False(t, ok)
	require.Greater(t, storer.calls, 0)

	storer.ack = true
	ok = svc.SetDigest(storer, "some-key", []byte("v"))
	require.True(t, ok)
}

type fakeFinder struct {
	value map[kademlia.NodeID][]byte
}

func (f *fakeFinder) RemoteFindValue(n kademlia.Node, key string) ([]byte, []kademlia.Node, error) {
	if v, ok := f.value[n.ID]; ok {
		return v, nil, nil
	}
	return nil, nil, nil
}

func TestClientFindValueHitsRemotePeer(t *testing.T) {
	svc := newTestService(t)
	peer := kademlia.Node{ID: mustIDT(t), Host: "127.0.0.1", Port: 9200}
	svc.RT.AddContact(peer)

	finder := &fakeFinder{value: map[kademlia.NodeID][]byte{peer.ID: []byte("remote-value")}}
	v, ok := svc.FindValue(finder, "missing-key", DefaultMaxDepth)
	require.True(t, ok)
	require.Equal(t, []byte("remote-value"), v)
}
