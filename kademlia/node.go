package kademlia

// Node is a routing-table contact: a NodeID and the address it
// answers the HTTP API on.
type Node struct {
	ID   NodeID
	Host string
	Port int
}

// SameHome reports whether two Node values share a home: the same
// host and port, regardless of ID.
func (n Node) SameHome(other Node) bool { return n.Host == other.Host && n.Port == other.Port }
