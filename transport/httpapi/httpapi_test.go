package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hoshizora/meshnode/dhtnet"
	"github.com/hoshizora/meshnode/identity"
	"github.com/hoshizora/meshnode/kademlia"
	"github.com/hoshizora/meshnode/overlay"
	"github.com/stretchr/testify/require"
)

type fakeKnownNodes struct{}

func (fakeKnownNodes) StoreNode(n kademlia.Node, lastSeen time.Time) error { return nil }
func (fakeKnownNodes) GetKnownNodes(maxAge time.Duration) ([]kademlia.Node, error) {
	return nil, nil
}

type fakeMessenger struct {
	lastEnvelope *identity.Envelope
}

func (f *fakeMessenger) HandleEnvelope(env *identity.Envelope) string {
	f.lastEnvelope = env
	return overlay.StatusOK
}

func (f *fakeMessenger) MessagesFor(identifier string) []overlay.ForwardRecord {
	return []overlay.ForwardRecord{{RecipientIdentifier: identifier}}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	id, err := kademlia.NewNodeID()
	require.NoError(t, err)
	local := kademlia.Node{ID: id, Host: "127.0.0.1", Port: 9000}
	svc := dhtnet.NewService(local, kademlia.NewRoutingTable(id), dhtnet.NewStore(), fakeKnownNodes{})

	s := &Server{DHT: svc, Messenger: &fakeMessenger{}, Remote: &Client{Self: local}}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHandleID(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/id")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, s.DHT.ID().String(), body["id"])
}

func TestHandleSendDelegatesToMessenger(t *testing.T) {
	s, ts := newTestServer(t)

	env := identity.Envelope{RecipientIdentifier: "someone", Signature: "sig-1"}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/send", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, overlay.StatusOK, body["status"])

	messenger := s.Messenger.(*fakeMessenger)
	require.Equal(t, "sig-1", messenger.lastEnvelope.Signature)
}

func TestHandleGetMessages(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/get_messages/bob", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string][]overlay.ForwardRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body["messages"], 1)
	require.Equal(t, "bob", body["messages"][0].RecipientIdentifier)
}

func TestDecodeHexOrUTF8Fallback(t *testing.T) {
	require.Equal(t, []byte{0xAB, 0xCD}, decodeHexOrUTF8("abcd"))
	require.Equal(t, []byte("not-hex!"), decodeHexOrUTF8("not-hex!"))
}

// TestStoreThenFindValueRoundTrip guards against the hex-key mismatch
// between /store and /find_value: both must decode the wire key the
// same way before touching the KV store, or a value stored via one
// path is never found via the other (spec §8 scenario 4).
func TestStoreThenFindValueRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)

	caller, err := kademlia.NewNodeID()
	require.NoError(t, err)
	storeReq := map[string]any{
		"node_id": caller.String(),
		"ip":      "127.0.0.1",
		"port":    9001,
		"key":     "74657374",
		"value":   "76616c31",
	}
	data, err := json.Marshal(storeReq)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/store", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	resp.Body.Close()

	findReq := map[string]any{
		"node_id": caller.String(),
		"ip":      "127.0.0.1",
		"port":    9001,
		"key":     "74657374",
	}
	data, err = json.Marshal(findReq)
	require.NoError(t, err)
	resp, err = http.Post(ts.URL+"/find_value", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "76616c31", body["value"])
}
