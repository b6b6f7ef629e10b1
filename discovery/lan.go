// Package discovery implements LAN peer discovery via libp2p host
// identities and mDNS, adapted from the node's own libp2p wiring.
// Unlike the teacher, discovery here never carries application
// traffic: a discovered peer is exchanged a one-shot hello over a
// dedicated stream protocol, then handed off to the Kademlia
// bootstrap RPC over HTTP (spec §4.4, §6). See Design Decision D1.
package discovery

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"log"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

// HelloProtocol is the one-shot stream protocol peers use to
// exchange their mesh identifier and HTTP address before handing off
// to the Kademlia bootstrap RPC.
const HelloProtocol = "/meshnode/hello/1.0.0"

// mdnsTag scopes the mDNS service so this node only discovers other
// meshnode instances, not unrelated libp2p services on the LAN.
const mdnsTag = "meshnode-lan-discovery"

// Hello is the payload exchanged over HelloProtocol: enough for the
// receiver to call this node's HTTP bootstrap endpoint.
type Hello struct {
	NodeIdentifier string `json:"node_identifier"`
	HTTPAddr       string `json:"http_addr"`
}

// OnPeerHello is invoked with a discovered peer's Hello; the node
// wires this to kademlia bootstrap + routing-table insertion.
type OnPeerHello func(h Hello)

// LANDiscoverer runs a libp2p host purely for LAN peer discovery: it
// advertises and listens via mDNS, and on each newly found peer opens
// a HelloProtocol stream to exchange identifiers before disconnecting.
type LANDiscoverer struct {
	host     host.Host
	self     Hello
	callback OnPeerHello
}

// NewLANDiscoverer builds a libp2p host and registers mDNS discovery
// plus the hello stream handler. seed, when 32 bytes long, is used to
// derive a stable libp2p peer identity across restarts (sourced from
// config.NodeSecrets.DiscoverySeed); a nil or wrong-length seed falls
// back to a fresh ephemeral identity.
func NewLANDiscoverer(self Hello, seed []byte, onHello OnPeerHello) (*LANDiscoverer, error) {
	var seedReader io.Reader
	if len(seed) == ed25519.SeedSize {
		seedReader = bytes.NewReader(seed)
	}
	priv, _, err := crypto.GenerateEd25519Key(seedReader)
	if err != nil {
		return nil, fmt.Errorf("discovery: generate identity: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
		libp2p.DefaultTransports,
		libp2p.ListenAddrStrings("/ip4/0.0.0.0/tcp/0", "/ip6/::/tcp/0"),
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: new libp2p host: %w", err)
	}

	d := &LANDiscoverer{host: h, self: self, callback: onHello}
	h.SetStreamHandler(HelloProtocol, d.handleHelloStream)

	// mDNS (new API signature), same as the node's own discovery setup.
	svc := mdns.NewMdnsService(h, mdnsTag, &notifee{d: d})
	if err := svc.Start(); err != nil {
		h.Close()
		return nil, fmt.Errorf("discovery: start mdns: %w", err)
	}

	return d, nil
}

// Close shuts down the discovery host.
func (d *LANDiscoverer) Close() error { return d.host.Close() }

type notifee struct{ d *LANDiscoverer }

func (n *notifee) HandlePeerFound(info peer.AddrInfo) {
	n.d.greetPeer(info)
}

func (d *LANDiscoverer) greetPeer(info peer.AddrInfo) {
	ctx := context.Background()
	if err := d.host.Connect(ctx, info); err != nil {
		log.Printf("[discovery] connect to %s failed: %v", info.ID, err)
		return
	}

	s, err := d.host.NewStream(ctx, info.ID, HelloProtocol)
	if err != nil {
		log.Printf("[discovery] hello stream to %s failed: %v", info.ID, err)
		return
	}
	defer s.Close()

	enc := json.NewEncoder(s)
	if err := enc.Encode(d.self); err != nil {
		log.Printf("[discovery] hello send to %s failed: %v", info.ID, err)
		return
	}

	var peerHello Hello
	if err := json.NewDecoder(bufio.NewReader(s)).Decode(&peerHello); err != nil {
		log.Printf("[discovery] hello recv from %s failed: %v", info.ID, err)
		return
	}

	log.Printf("[discovery] found peer %s at %s", peerHello.NodeIdentifier, peerHello.HTTPAddr)
	d.callback(peerHello)
}

func (d *LANDiscoverer) handleHelloStream(s network.Stream) {
	defer s.Close()

	var peerHello Hello
	if err := json.NewDecoder(bufio.NewReader(s)).Decode(&peerHello); err != nil {
		log.Printf("[discovery] hello recv failed: %v", err)
		return
	}
	if err := json.NewEncoder(s).Encode(d.self); err != nil {
		log.Printf("[discovery] hello reply failed: %v", err)
		return
	}

	log.Printf("[discovery] greeted by peer %s at %s", peerHello.NodeIdentifier, peerHello.HTTPAddr)
	d.callback(peerHello)
}
