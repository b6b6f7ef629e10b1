package main

import (
	"log"
	"time"

	"github.com/hoshizora/meshnode/identity"
	"github.com/hoshizora/meshnode/kademlia"
	"github.com/hoshizora/meshnode/overlay"
	"github.com/hoshizora/meshnode/storage"
	"github.com/hoshizora/meshnode/transport/httpapi"
)

// node ties the local identity, the forward overlay, and durable
// storage together behind the httpapi.MessengerHandler interface the public
// HTTP server talks to.
type node struct {
	keys     *identity.Keys
	self     kademlia.Node
	contacts *overlay.Contacts
	seen     *overlay.SeenHistory
	store    *storage.Storage
	client   *httpapi.Client
}

func newNodeRuntime(keys *identity.Keys, self kademlia.Node, store *storage.Storage, client *httpapi.Client) (*node, error) {
	n := &node{
		keys:     keys,
		self:     self,
		contacts: overlay.NewContacts(),
		seen:     overlay.NewSeenHistory(),
		store:    store,
		client:   client,
	}

	n.contacts.Attach(store)
	n.seen.Attach(store)

	persisted, err := store.ListContacts()
	if err != nil {
		return nil, err
	}
	for _, c := range persisted {
		n.contacts.Add(c)
	}

	forwardRecords, err := store.ListAllForwardRecords()
	if err != nil {
		return nil, err
	}
	for _, fr := range forwardRecords {
		n.contacts.RestoreForwardRecord(fr)
	}

	seenRows, err := store.ListSeenSignatures()
	if err != nil {
		return nil, err
	}
	for _, row := range seenRows {
		n.seen.Restore(row.Signature, row.SeenAt)
	}

	return n, nil
}

// HandleEnvelope implements httpapi.MessengerHandler: it runs the
// inbound policy (spec §4.5) and, for envelopes not addressed to
// self, schedules the background forward task without blocking the
// HTTP response.
func (n *node) HandleEnvelope(env *identity.Envelope) string {
	outcome := overlay.HandleInbound(env, n.keys.Identifier, n.seen, n.deliverLocally)
	if outcome.ForwardPath {
		prepared := overlay.PrepareForward(*env, n.keys.Identifier, n.contacts)
		go overlay.Dispatch(prepared, outcome.OriginSender, n.contacts, n.client)
	}
	return outcome.Status
}

// deliverLocally opens an envelope addressed to this node, records
// the sender as a contact if new, and persists the message.
func (n *node) deliverLocally(env *identity.Envelope) error {
	msg, err := identity.Open(n.keys, env)
	if err != nil {
		log.Printf("[node] envelope open failed: %v", err)
		return err
	}

	if !n.contacts.Has(msg.SenderID) {
		contact := overlay.Contact{Identifier: msg.SenderID, Addr: msg.SenderDest}
		n.contacts.Add(contact)
		if err := n.store.AddContact(contact); err != nil {
			log.Printf("[node] persist contact failed: %v", err)
		}
	}

	if err := n.store.AddMessage(msg.SenderID, msg.Message, msg.Timestamp); err != nil {
		log.Printf("[node] persist message failed: %v", err)
		return err
	}
	return nil
}

// MessagesFor implements httpapi.MessengerHandler: returns every
// ForwardRecord currently queued for identifier.
func (n *node) MessagesFor(identifier string) []overlay.ForwardRecord {
	return n.contacts.GetForwardRecords(identifier)
}

// purgeLoop runs the storage layer's time-based purges (spec §6):
// seen signatures, forward records, and KV entries, each on its own
// TTL, triggered periodically rather than strictly on insert since
// the sqlite-backed store has no per-row timers.
func (n *node) purgeLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := n.store.PurgeSeenSignatures(overlay.SeenHistoryTTL, now); err != nil {
				log.Printf("[node] purge seen signatures failed: %v", err)
			}
			if err := n.store.PurgeForwardRecords(overlay.ForwardRecordTTL, now); err != nil {
				log.Printf("[node] purge forward records failed: %v", err)
			}
			if err := n.store.CullKV(7*24*time.Hour, now); err != nil {
				log.Printf("[node] cull kv store failed: %v", err)
			}
		}
	}
}
