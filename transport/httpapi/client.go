package httpapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hoshizora/meshnode/dhtnet"
	"github.com/hoshizora/meshnode/identity"
	"github.com/hoshizora/meshnode/kademlia"
	"github.com/hoshizora/meshnode/overlay"
)

// Per-operation timeouts, per spec §6's external-interface framing:
// forwarding hops stay short so a slow contact cannot stall the
// fanout; DHT calls get more room for a deliberately small network;
// bootstrap gets the most since it may trigger fresh TCP/TLS setup
// against a peer that was only just discovered.
const (
	forwardTimeout  = 5 * time.Second
	dhtCallTimeout  = 10 * time.Second
	bootstrapTimeout = 30 * time.Second
)

// Client issues outbound calls against the wire protocol of spec §6.
// Every call builds its own scoped *http.Client so one slow peer's
// timeout can never leak into another call's deadline.
type Client struct {
	Self kademlia.Node
}

func (c *Client) post(ctx context.Context, timeout time.Duration, url string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httpapi: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("httpapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpapi: %s: status %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) callerFields() callerFields {
	return callerFields{NodeID: c.Self.ID.String(), IP: c.Self.Host, Port: c.Self.Port}
}

func nodeAddr(n kademlia.Node) string {
	return fmt.Sprintf("http://%s:%d", n.Host, n.Port)
}

// RemoteStore implements dhtnet.RemoteStorer.
func (c *Client) RemoteStore(n kademlia.Node, key string, value []byte) bool {
	req := struct {
		callerFields
		Key   string `json:"key"`
		Value string `json:"value"`
	}{callerFields: c.callerFields(), Key: key, Value: hex.EncodeToString(value)}

	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.post(context.Background(), dhtCallTimeout, nodeAddr(n)+"/store", req, &resp); err != nil {
		log.Printf("[httpapi] store to %s failed: %v", n.ID, err)
		return false
	}
	return resp.OK
}

// RemoteFindValue implements dhtnet.RemoteFinder.
func (c *Client) RemoteFindValue(n kademlia.Node, key string) ([]byte, []kademlia.Node, error) {
	req := struct {
		callerFields
		Key string `json:"key"`
	}{callerFields: c.callerFields(), Key: key}

	var resp struct {
		Value string       `json:"value"`
		Nodes [][3]any     `json:"nodes"`
	}
	if err := c.post(context.Background(), dhtCallTimeout, nodeAddr(n)+"/find_value", req, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Value != "" {
		v, err := hex.DecodeString(resp.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("httpapi: decode value: %w", err)
		}
		return v, nil, nil
	}
	return nil, wireToNodes(resp.Nodes), nil
}

func wireToNodes(raw [][3]any) []kademlia.Node {
	out := make([]kademlia.Node, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 3 {
			continue
		}
		idHex, _ := entry[0].(string)
		host, _ := entry[1].(string)
		portF, _ := entry[2].(float64)
		id, err := kademlia.NodeIDFromHex(idHex)
		if err != nil {
			continue
		}
		out = append(out, kademlia.Node{ID: id, Host: host, Port: int(portF)})
	}
	return out
}

// Bootstrap performs the symmetric bootstrap RPC against n.
func (c *Client) Bootstrap(n kademlia.Node) error {
	var resp struct {
		OK bool `json:"ok"`
	}
	return c.post(context.Background(), bootstrapTimeout, nodeAddr(n)+"/bootstrap", c.callerFields(), &resp)
}

// FindNode issues the find_node RPC against n.
func (c *Client) FindNode(n kademlia.Node, key string) ([]kademlia.Node, error) {
	req := struct {
		callerFields
		Key string `json:"key"`
	}{callerFields: c.callerFields(), Key: key}

	var resp struct {
		Nodes [][3]any `json:"nodes"`
	}
	if err := c.post(context.Background(), dhtCallTimeout, nodeAddr(n)+"/find_node", req, &resp); err != nil {
		return nil, err
	}
	return wireToNodes(resp.Nodes), nil
}

// Send implements overlay.Sender: it posts env to contact.Addr+"/send"
// with a short timeout and reports whether the recipient acknowledged
// OK.
func (c *Client) Send(contact overlay.Contact, env identity.Envelope) bool {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.post(context.Background(), forwardTimeout, contact.Addr+"/send", env, &resp); err != nil {
		log.Printf("[httpapi] forward to %s failed: %v", contact.Identifier, err)
		return false
	}
	return resp.Status == overlay.StatusOK
}

var _ dhtnet.RemoteStorer = (*Client)(nil)
var _ dhtnet.RemoteFinder = (*Client)(nil)
var _ overlay.Sender = (*Client)(nil)
