// Package overlay implements the store-and-forward gossip layer:
// seen-signature deduplication, the contact graph, randomized-fanout
// forwarding, and the offline ForwardRecord queue.
package overlay

import (
	"log"
	"sync"
	"time"
)

// SeenHistoryTTL is how long a signature is remembered for dedup
// purposes before it is purged.
const SeenHistoryTTL = 24 * time.Hour

// SeenPersister durably records seen signatures so dedup state
// survives a restart. package storage implements this.
type SeenPersister interface {
	AddSeenSignature(signature string, at time.Time) error
}

// SeenHistory deduplicates envelopes by signature so a re-delivered
// or looping message is dropped rather than re-processed.
type SeenHistory struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	persist SeenPersister
}

// NewSeenHistory builds an empty SeenHistory.
func NewSeenHistory() *SeenHistory {
	return &SeenHistory{seen: make(map[string]time.Time)}
}

// Attach wires a durable persister so future Add calls also survive a
// restart. Call Restore with the persister's prior contents to
// repopulate them; Restore never writes back, so it may run before or
// after Attach.
func (h *SeenHistory) Attach(p SeenPersister) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.persist = p
}

// Restore loads a previously-persisted signature directly into
// memory, without writing back through the attached persister.
// Signatures already outside the dedup window are dropped.
func (h *SeenHistory) Restore(signature string, at time.Time) {
	if time.Since(at) > SeenHistoryTTL {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[signature] = at
}

// Seen reports whether signature has already been recorded and is
// still within the dedup window.
func (h *SeenHistory) Seen(signature string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.purgeLocked(time.Now())
	_, ok := h.seen[signature]
	return ok
}

// Add records signature as seen at the given timestamp.
func (h *SeenHistory) Add(signature string, at time.Time) {
	h.mu.Lock()
	h.seen[signature] = at
	h.purgeLocked(time.Now())
	persist := h.persist
	h.mu.Unlock()

	if persist != nil {
		if err := persist.AddSeenSignature(signature, at); err != nil {
			log.Printf("[overlay] persist seen signature failed: %v", err)
		}
	}
}

func (h *SeenHistory) purgeLocked(now time.Time) {
	for sig, ts := range h.seen {
		if now.Sub(ts) > SeenHistoryTTL {
			delete(h.seen, sig)
		}
	}
}
