// Package httpapi implements the wire protocol of spec §6 over
// HTTP+JSON with gorilla/mux routing: the seven DHT endpoints (the six
// remote operations plus /set) and the messenger /send and
// /get_messages/{identifier} endpoints.
package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hoshizora/meshnode/dhtnet"
	"github.com/hoshizora/meshnode/identity"
	"github.com/hoshizora/meshnode/kademlia"
	"github.com/hoshizora/meshnode/overlay"
)

// MessengerHandler is everything the /send and /get_messages routes
// need from the node, kept as a narrow interface so the HTTP layer
// never reaches into node internals directly.
type MessengerHandler interface {
	HandleEnvelope(env *identity.Envelope) (status string)
	MessagesFor(identifier string) []overlay.ForwardRecord
}

// Server binds a DHT service and a messenger handler to the routes of
// spec §6.
type Server struct {
	DHT       *dhtnet.Service
	Messenger MessengerHandler
	Remote    RemoteStoreOp // used to drive set_digest replication from /set
}

// RemoteStoreOp lets the server trigger replication without importing
// transport back into dhtnet.
type RemoteStoreOp interface {
	dhtnet.RemoteStorer
}

// Router builds the gorilla/mux router for this server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logMiddleware)

	r.HandleFunc("/id", s.handleID).Methods(http.MethodGet)
	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodPost)
	r.HandleFunc("/store", s.handleStore).Methods(http.MethodPost)
	r.HandleFunc("/set", s.handleSet).Methods(http.MethodPost)
	r.HandleFunc("/bootstrap", s.handleBootstrap).Methods(http.MethodPost)
	r.HandleFunc("/find_node", s.handleFindNode).Methods(http.MethodPost)
	r.HandleFunc("/find_value", s.handleFindValue).Methods(http.MethodPost)
	r.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)
	r.HandleFunc("/get_messages/{identifier}", s.handleGetMessages).Methods(http.MethodPost)

	return r
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[http] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// decodeHexOrUTF8 implements spec §6's decoding rule: try hex first,
// fall back to the literal string's UTF-8 bytes on parse failure.
func decodeHexOrUTF8(s string) []byte {
	if b, err := hex.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}

type callerFields struct {
	NodeID string `json:"node_id"`
	IP     string `json:"ip"`
	Port   int    `json:"port"`
}

func (c callerFields) toNode() (kademlia.Node, error) {
	id, err := kademlia.NodeIDFromHex(c.NodeID)
	if err != nil {
		return kademlia.Node{}, err
	}
	return kademlia.Node{ID: id, Host: c.IP, Port: c.Port}, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"id": s.DHT.ID().String()})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var req callerFields
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	src, err := req.toNode()
	if err != nil {
		http.Error(w, "bad node_id", http.StatusBadRequest)
		return
	}
	id := s.DHT.Ping(src)
	writeJSON(w, map[string]string{"id": id.String()})
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		callerFields
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	src, err := req.toNode()
	if err != nil {
		http.Error(w, "bad node_id", http.StatusBadRequest)
		return
	}
	key := decodeHexOrUTF8(req.Key)
	value := decodeHexOrUTF8(req.Value)
	s.DHT.StoreOp(src, string(key), value)
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID string `json:"node_id"`
		Key    string `json:"key"`
		Value  string `json:"value"`
	}
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	key := decodeHexOrUTF8(req.Key)
	value := decodeHexOrUTF8(req.Value)
	ok := s.DHT.SetDigest(s.Remote, string(key), value)
	writeJSON(w, map[string]bool{"ok": ok})
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req callerFields
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	src, err := req.toNode()
	if err != nil {
		http.Error(w, "bad node_id", http.StatusBadRequest)
		return
	}
	s.DHT.Bootstrap(src)
	writeJSON(w, map[string]bool{"ok": true})
}

func nodesToWire(nodes []kademlia.Node) [][3]any {
	out := make([][3]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, [3]any{n.ID.String(), n.Host, n.Port})
	}
	return out
}

func (s *Server) handleFindNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		callerFields
		Key string `json:"key"`
	}
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	src, err := req.toNode()
	if err != nil {
		http.Error(w, "bad node_id", http.StatusBadRequest)
		return
	}
	key := decodeHexOrUTF8(req.Key)
	target := dhtnet.KeyToNodeID(string(key))
	nodes := s.DHT.FindNode(src, target)
	writeJSON(w, map[string]any{"nodes": nodesToWire(nodes)})
}

func (s *Server) handleFindValue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		callerFields
		Key string `json:"key"`
	}
	if json.NewDecoder(r.Body).Decode(&req) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	src, err := req.toNode()
	if err != nil {
		http.Error(w, "bad node_id", http.StatusBadRequest)
		return
	}
	key := string(decodeHexOrUTF8(req.Key))
	target := dhtnet.KeyToNodeID(key)
	value, nodes := s.DHT.FindValueRPC(src, key, target)
	if value != nil {
		writeJSON(w, map[string]string{"value": hex.EncodeToString(value)})
		return
	}
	writeJSON(w, map[string]any{"nodes": nodesToWire(nodes)})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var env identity.Envelope
	if json.NewDecoder(r.Body).Decode(&env) != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	status := s.Messenger.HandleEnvelope(&env)
	writeJSON(w, map[string]string{"status": status})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]
	records := s.Messenger.MessagesFor(identifier)
	writeJSON(w, map[string]any{"messages": records})
}
