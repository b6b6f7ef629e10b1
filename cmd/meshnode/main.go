// Command meshnode runs a single post-quantum mesh messenger node:
// DHT participant, store-and-forward overlay relay, and HTTP API
// server, all bound to one on-disk identity and sqlite database.
package main

import (
	"bufio"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/term"

	"github.com/hoshizora/meshnode/config"
	"github.com/hoshizora/meshnode/dhtnet"
	"github.com/hoshizora/meshnode/discovery"
	"github.com/hoshizora/meshnode/identity"
	"github.com/hoshizora/meshnode/kademlia"
	"github.com/hoshizora/meshnode/storage"
	"github.com/hoshizora/meshnode/transport/httpapi"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("[config] %v", err)
	}

	passphrase, err := resolvePassphrase()
	if err != nil {
		log.Fatalf("[identity] %v", err)
	}

	keys, err := loadOrCreateKeys(cfg.KeyBundlePath, passphrase)
	if err != nil {
		log.Fatalf("[identity] %v", err)
	}
	log.Printf("[identity] node identifier=%s", keys.Identifier)

	store, err := storage.Open(cfg.DBPath())
	if err != nil {
		log.Fatalf("[storage] %v", err)
	}
	defer store.Close()

	localID, err := loadOrCreateLocalNodeID(filepath.Join(cfg.DataDir, "node_id"))
	if err != nil {
		log.Fatalf("[kademlia] %v", err)
	}
	self := kademlia.Node{ID: localID, Host: cfg.Host, Port: cfg.Port}
	log.Printf("[kademlia] local node id=%s", self.ID)

	rt := kademlia.NewRoutingTable(self.ID)
	kv := dhtnet.NewStore()
	kv.Attach(store)
	if rows, err := store.ListKV(); err != nil {
		log.Printf("[dhtnet] restore kv store failed: %v", err)
	} else {
		for _, row := range rows {
			kv.Restore(row.Key, row.Value, row.Timestamp)
		}
	}
	dht := dhtnet.NewService(self, rt, kv, store)
	if err := dht.RestoreKnownNodes(0); err != nil {
		log.Printf("[kademlia] restore known nodes failed: %v", err)
	}

	client := &httpapi.Client{Self: self}

	runtime, err := newNodeRuntime(keys, self, store, client)
	if err != nil {
		log.Fatalf("[node] %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go runtime.purgeLoop(stop)

	secrets, err := loadOrCreateNodeSecrets(cfg.SecretsPath(), passphrase)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}

	hello := discovery.Hello{NodeIdentifier: keys.Identifier, HTTPAddr: cfg.HTTPAddr()}
	lan, err := discovery.NewLANDiscoverer(hello, secrets.DiscoverySeed[:], func(peerHello discovery.Hello) {
		onPeerDiscovered(peerHello, client, self)
	})
	if err != nil {
		log.Printf("[discovery] disabled: %v", err)
	} else {
		defer lan.Close()
	}

	server := &httpapi.Server{DHT: dht, Messenger: runtime, Remote: client}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("[http] listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[http] %v", err)
	}
}

// onPeerDiscovered bridges LAN discovery into the Kademlia bootstrap
// RPC: a peer found via mDNS is added as a DHT contact by calling its
// HTTP bootstrap endpoint directly (Design Decision D1).
func onPeerDiscovered(peerHello discovery.Hello, client *httpapi.Client, self kademlia.Node) {
	host, port, err := parseHTTPAddr(peerHello.HTTPAddr)
	if err != nil {
		log.Printf("[discovery] bad peer address %q: %v", peerHello.HTTPAddr, err)
		return
	}
	if err := client.Bootstrap(kademlia.Node{Host: host, Port: port}); err != nil {
		log.Printf("[discovery] bootstrap against %s failed: %v", peerHello.HTTPAddr, err)
	}
}

func parseHTTPAddr(addr string) (host string, port int, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", 0, err
	}
	host = u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("unrecognized address %q", addr)
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("bad port in %q: %w", addr, err)
		}
	}
	return host, port, nil
}

func resolvePassphrase() ([]byte, error) {
	if v := os.Getenv("MESHNODE_PASS"); v != "" {
		return []byte(v), nil
	}
	fmt.Fprint(os.Stderr, "KeyBundle passphrase: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		return pass, err
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

func loadOrCreateKeys(path string, passphrase []byte) (*identity.Keys, error) {
	if _, err := os.Stat(path); err == nil {
		bundle, err := identity.LoadKeyBundle(path)
		if err != nil {
			return nil, err
		}
		return bundle.Open(passphrase)
	}

	bundle, keys, err := identity.CreateKeyBundle(passphrase)
	if err != nil {
		return nil, err
	}
	if err := identity.SaveKeyBundle(path, bundle); err != nil {
		return nil, err
	}
	log.Printf("[identity] created new key bundle at %s", path)
	return keys, nil
}

// loadOrCreateNodeSecrets opens this node's encrypted local secrets
// file (currently just the libp2p discovery seed), creating it under
// the same passphrase as the KeyBundle if it doesn't exist yet.
func loadOrCreateNodeSecrets(path string, passphrase []byte) (*config.NodeSecrets, error) {
	if _, err := os.Stat(path); err == nil {
		return config.LoadNodeSecrets(path, passphrase)
	}
	return config.CreateNodeSecrets(path, passphrase)
}

func loadOrCreateLocalNodeID(path string) (kademlia.NodeID, error) {
	if data, err := os.ReadFile(path); err == nil {
		return kademlia.NodeIDFromHex(string(data))
	}

	id, err := kademlia.NewNodeID()
	if err != nil {
		return kademlia.NodeID{}, err
	}
	if err := os.WriteFile(path, []byte(id.String()), 0o600); err != nil {
		return kademlia.NodeID{}, err
	}
	return id, nil
}
