// Package dhtnet implements the Kademlia-style DHT service: the
// node's six remote operations, key/value replication, and the
// iterative client-side lookup.
package dhtnet

import (
	"log"
	"sync"
	"time"
)

// DefaultTTL is how long a stored key/value pair survives before
// cull treats it as expired.
const DefaultTTL = 7 * 24 * time.Hour

type kvEntry struct {
	value    []byte
	storedAt time.Time
}

// Persister durably records key/value writes so the DHT's store
// survives a restart. package storage implements this.
type Persister interface {
	SetKV(key string, value []byte, now time.Time) error
}

// Store is a TTL'd key/value table. Readers lazily evict expired
// entries before every read (cull); writers never evict.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]kvEntry
	persist Persister
}

// NewStore builds a Store with DefaultTTL.
func NewStore() *Store {
	return &Store{ttl: DefaultTTL, entries: make(map[string]kvEntry)}
}

// Attach wires a durable persister so future Set calls also survive a
// restart; existing in-memory entries are unaffected. Call Restore
// with the persister's prior contents to repopulate them; Restore
// never writes back, so it may run before or after Attach.
func (s *Store) Attach(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = p
}

// Restore loads a previously-persisted (key, value, storedAt) triple
// directly into memory, without writing back through the attached
// persister. Intended for startup, before new writes arrive.
func (s *Store) Restore(key string, value []byte, storedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = kvEntry{value: value, storedAt: storedAt}
}

// Set writes (key, value, now) into the store, replacing any prior
// value under the same key.
func (s *Store) Set(key string, value []byte, now time.Time) {
	s.mu.Lock()
	s.entries[key] = kvEntry{value: value, storedAt: now}
	persist := s.persist
	s.mu.Unlock()

	if persist != nil {
		if err := persist.SetKV(key, value, now); err != nil {
			log.Printf("[dhtnet] persist kv entry failed: %v", err)
		}
	}
}

// Get culls expired entries, then returns the value for key if
// present and unexpired.
func (s *Store) Get(key string, now time.Time) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cullLocked(now)
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Cull evicts every entry older than the store's TTL.
func (s *Store) Cull(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cullLocked(now)
}

func (s *Store) cullLocked(now time.Time) {
	for k, e := range s.entries {
		if now.Sub(e.storedAt) > s.ttl {
			delete(s.entries, k)
		}
	}
}

// Iter returns a snapshot of all currently-held (key, value) pairs,
// without culling.
func (s *Store) Iter() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.entries))
	for k, e := range s.entries {
		out[k] = e.value
	}
	return out
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]kvEntry)
}
