package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hoshizora/meshnode/kademlia"
	"github.com/hoshizora/meshnode/overlay"
	"github.com/stretchr/testify/require"
)

func openTestStorage(t *testing.T) *Storage {
	s, err := Open(filepath.Join(t.TempDir(), "node.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKVRoundTripAndCull(t *testing.T) {
	s := openTestStorage(t)
	now := time.Now()

	require.NoError(t, s.SetKV("k1", []byte("v1"), now))
	v, ok, err := s.GetKV("k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, s.SetKV("k2", []byte("v2"), now.Add(-8*24*time.Hour)))
	require.NoError(t, s.CullKV(7*24*time.Hour, now))

	_, ok, err = s.GetKV("k2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKnownNodesRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	id, err := kademlia.NewNodeID()
	require.NoError(t, err)
	node := kademlia.Node{ID: id, Host: "10.0.0.5", Port: 7000}

	require.NoError(t, s.StoreNode(node, time.Now()))
	nodes, err := s.GetKnownNodes(0)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, node, nodes[0])
}

func TestContactsRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	c := overlay.Contact{Identifier: "abc", Addr: "http://peer:8080"}
	require.NoError(t, s.AddContact(c))

	got, ok, err := s.GetContact("abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c, got)

	list, err := s.ListContacts()
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestMessagesListBySender(t *testing.T) {
	s := openTestStorage(t)
	require.NoError(t, s.AddMessage("sender-1", []byte("hello"), time.Now()))
	require.NoError(t, s.AddMessage("sender-1", []byte("world"), time.Now()))
	require.NoError(t, s.AddMessage("sender-2", []byte("other"), time.Now()))

	msgs, err := s.ListMessages("sender-1")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("hello"), []byte("world")}, msgs)
}

func TestForwardRecordsLifecycle(t *testing.T) {
	s := openTestStorage(t)
	require.NoError(t, s.AddForwardRecord(overlay.ForwardRecord{
		RecipientIdentifier: "rec-1",
		EnvelopeJSON:        []byte(`{}`),
		CreatedAt:           time.Now(),
	}))

	records, err := s.GetForwardRecords("rec-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, s.DeleteForwardRecords("rec-1"))
	records, err = s.GetForwardRecords("rec-1")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSeenSignaturesRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ok, err := s.GetSeenSignature("sig-x")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.AddSeenSignature("sig-x", time.Now()))
	ok, err = s.GetSeenSignature("sig-x")
	require.NoError(t, err)
	require.True(t, ok)
}
