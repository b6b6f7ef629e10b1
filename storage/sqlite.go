// Package storage persists the node's durable state in a single
// sqlite database: DHT keys/values, known nodes, contacts, delivered
// messages, pending forward records, and seen signatures. Modeled on
// keysaver-server's Storage type: a thin wrapper over database/sql
// with hand-written schema and queries, no ORM.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hoshizora/meshnode/kademlia"
	"github.com/hoshizora/meshnode/overlay"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key BLOB PRIMARY KEY,
	value TEXT NOT NULL,
	timestamp REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS known_nodes (
	node_id TEXT PRIMARY KEY,
	ip TEXT NOT NULL,
	port INTEGER NOT NULL,
	last_seen REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS contacts (
	identifier TEXT PRIMARY KEY,
	addr TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id TEXT NOT NULL,
	message BLOB NOT NULL,
	received_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);
CREATE TABLE IF NOT EXISTS forward_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recipient_identifier TEXT NOT NULL,
	envelope_json BLOB NOT NULL,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_forward_records_recipient ON forward_records(recipient_identifier);
CREATE TABLE IF NOT EXISTS seen_signatures (
	signature TEXT PRIMARY KEY,
	seen_at REAL NOT NULL
);
`

// Storage is the node's sqlite-backed persistence layer.
type Storage struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// applies the schema.
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	s := &Storage{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error { return s.db.Close() }

// --- kv_store -------------------------------------------------------

// SetKV writes (key, value, now) into the kv_store table.
func (s *Storage) SetKV(key string, value []byte, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO kv_store (key, value, timestamp) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, timestamp = excluded.timestamp`,
		key, string(value), float64(now.Unix()),
	)
	return err
}

// GetKV returns the value for key if present.
func (s *Storage) GetKV(key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

// CullKV deletes every kv_store row older than ttl.
func (s *Storage) CullKV(ttl time.Duration, now time.Time) error {
	cutoff := float64(now.Add(-ttl).Unix())
	_, err := s.db.Exec(`DELETE FROM kv_store WHERE timestamp < ?`, cutoff)
	return err
}

// KVRow is a persisted kv_store record, used to restore dhtnet.Store's
// in-memory table at startup.
type KVRow struct {
	Key       string
	Value     []byte
	Timestamp time.Time
}

// ListKV returns every persisted kv_store row, without culling.
func (s *Storage) ListKV() ([]KVRow, error) {
	rows, err := s.db.Query(`SELECT key, value, timestamp FROM kv_store`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KVRow
	for rows.Next() {
		var r KVRow
		var value string
		var ts float64
		if err := rows.Scan(&r.Key, &value, &ts); err != nil {
			return nil, err
		}
		r.Value = []byte(value)
		r.Timestamp = time.Unix(int64(ts), 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- known_nodes ------------------------------------------------------

// StoreNode implements dhtnet.KnownNodesStore: records a contact the
// routing table has welcomed.
func (s *Storage) StoreNode(n kademlia.Node, lastSeen time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO known_nodes (node_id, ip, port, last_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET ip = excluded.ip, port = excluded.port, last_seen = excluded.last_seen`,
		n.ID.String(), n.Host, n.Port, float64(lastSeen.Unix()),
	)
	return err
}

// GetKnownNodes implements dhtnet.KnownNodesStore: restores nodes seen
// within maxAge (0 means no age filter).
func (s *Storage) GetKnownNodes(maxAge time.Duration) ([]kademlia.Node, error) {
	query := `SELECT node_id, ip, port FROM known_nodes`
	args := []any{}
	if maxAge > 0 {
		query += ` WHERE last_seen >= ?`
		args = append(args, float64(time.Now().Add(-maxAge).Unix()))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kademlia.Node
	for rows.Next() {
		var idHex, ip string
		var port int
		if err := rows.Scan(&idHex, &ip, &port); err != nil {
			return nil, err
		}
		id, err := kademlia.NodeIDFromHex(idHex)
		if err != nil {
			continue
		}
		out = append(out, kademlia.Node{ID: id, Host: ip, Port: port})
	}
	return out, rows.Err()
}

// --- contacts ---------------------------------------------------------

// AddContact persists a contact.
func (s *Storage) AddContact(c overlay.Contact) error {
	_, err := s.db.Exec(
		`INSERT INTO contacts (identifier, addr) VALUES (?, ?)
		 ON CONFLICT(identifier) DO UPDATE SET addr = excluded.addr`,
		c.Identifier, c.Addr,
	)
	return err
}

// GetContact looks up a single contact by identifier.
func (s *Storage) GetContact(identifier string) (overlay.Contact, bool, error) {
	var c overlay.Contact
	err := s.db.QueryRow(`SELECT identifier, addr FROM contacts WHERE identifier = ?`, identifier).
		Scan(&c.Identifier, &c.Addr)
	if err == sql.ErrNoRows {
		return overlay.Contact{}, false, nil
	}
	if err != nil {
		return overlay.Contact{}, false, err
	}
	return c, true, nil
}

// ListContacts returns every persisted contact.
func (s *Storage) ListContacts() ([]overlay.Contact, error) {
	rows, err := s.db.Query(`SELECT identifier, addr FROM contacts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []overlay.Contact
	for rows.Next() {
		var c overlay.Contact
		if err := rows.Scan(&c.Identifier, &c.Addr); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- messages -----------------------------------------------------------

// AddMessage persists a delivered message body under its sender's
// identifier.
func (s *Storage) AddMessage(senderID string, message []byte, receivedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (sender_id, message, received_at) VALUES (?, ?, ?)`,
		senderID, message, float64(receivedAt.Unix()),
	)
	return err
}

// ListMessages returns every message received from senderID, oldest
// first.
func (s *Storage) ListMessages(senderID string) ([][]byte, error) {
	rows, err := s.db.Query(
		`SELECT message FROM messages WHERE sender_id = ? ORDER BY received_at ASC`, senderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var m []byte
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- forward_records ------------------------------------------------------

// AddForwardRecord persists a pending ForwardRecord.
func (s *Storage) AddForwardRecord(fr overlay.ForwardRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO forward_records (recipient_identifier, envelope_json, created_at) VALUES (?, ?, ?)`,
		fr.RecipientIdentifier, fr.EnvelopeJSON, float64(fr.CreatedAt.Unix()),
	)
	return err
}

// GetForwardRecords returns every pending ForwardRecord for recipient.
func (s *Storage) GetForwardRecords(recipient string) ([]overlay.ForwardRecord, error) {
	rows, err := s.db.Query(
		`SELECT recipient_identifier, envelope_json, created_at FROM forward_records WHERE recipient_identifier = ?`,
		recipient,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []overlay.ForwardRecord
	for rows.Next() {
		var fr overlay.ForwardRecord
		var createdUnix float64
		if err := rows.Scan(&fr.RecipientIdentifier, &fr.EnvelopeJSON, &createdUnix); err != nil {
			return nil, err
		}
		fr.CreatedAt = time.Unix(int64(createdUnix), 0)
		out = append(out, fr)
	}
	return out, rows.Err()
}

// DeleteForwardRecords removes every pending ForwardRecord for
// recipient, called once a delivery to them succeeds.
func (s *Storage) DeleteForwardRecords(recipient string) error {
	_, err := s.db.Exec(`DELETE FROM forward_records WHERE recipient_identifier = ?`, recipient)
	return err
}

// ListAllForwardRecords returns every persisted ForwardRecord across
// all recipients, used to restore overlay.Contacts' in-memory offline
// queue at startup.
func (s *Storage) ListAllForwardRecords() ([]overlay.ForwardRecord, error) {
	rows, err := s.db.Query(`SELECT recipient_identifier, envelope_json, created_at FROM forward_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []overlay.ForwardRecord
	for rows.Next() {
		var fr overlay.ForwardRecord
		var createdUnix float64
		if err := rows.Scan(&fr.RecipientIdentifier, &fr.EnvelopeJSON, &createdUnix); err != nil {
			return nil, err
		}
		fr.CreatedAt = time.Unix(int64(createdUnix), 0)
		out = append(out, fr)
	}
	return out, rows.Err()
}

// PurgeForwardRecords deletes forward records older than ttl.
func (s *Storage) PurgeForwardRecords(ttl time.Duration, now time.Time) error {
	cutoff := float64(now.Add(-ttl).Unix())
	_, err := s.db.Exec(`DELETE FROM forward_records WHERE created_at < ?`, cutoff)
	return err
}

// --- seen_signatures ------------------------------------------------------

// AddSeenSignature records signature as seen at ts.
func (s *Storage) AddSeenSignature(signature string, ts time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO seen_signatures (signature, seen_at) VALUES (?, ?)
		 ON CONFLICT(signature) DO UPDATE SET seen_at = excluded.seen_at`,
		signature, float64(ts.Unix()),
	)
	return err
}

// GetSeenSignature reports whether signature has been recorded.
func (s *Storage) GetSeenSignature(signature string) (bool, error) {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM seen_signatures WHERE signature = ?`, signature).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SeenRow is a persisted seen-signature record, used to restore
// overlay.SeenHistory's in-memory dedup set at startup.
type SeenRow struct {
	Signature string
	SeenAt    time.Time
}

// ListSeenSignatures returns every persisted seen-signature row,
// without culling.
func (s *Storage) ListSeenSignatures() ([]SeenRow, error) {
	rows, err := s.db.Query(`SELECT signature, seen_at FROM seen_signatures`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SeenRow
	for rows.Next() {
		var r SeenRow
		var ts float64
		if err := rows.Scan(&r.Signature, &ts); err != nil {
			return nil, err
		}
		r.SeenAt = time.Unix(int64(ts), 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeSeenSignatures deletes seen-signature rows older than ttl.
func (s *Storage) PurgeSeenSignatures(ttl time.Duration, now time.Time) error {
	cutoff := float64(now.Add(-ttl).Unix())
	_, err := s.db.Exec(`DELETE FROM seen_signatures WHERE seen_at < ?`, cutoff)
	return err
}
