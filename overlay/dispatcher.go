package overlay

import (
	"log"

	"github.com/google/uuid"

	"github.com/hoshizora/meshnode/identity"
)

// Sender delivers an envelope to a single contact over the wire
// protocol's /send endpoint. transport/httpapi's client implements
// this with a short per-call timeout.
type Sender interface {
	Send(contact Contact, env identity.Envelope) (delivered bool)
}

// Dispatch runs the background forward task described in spec §4.5:
// it drops envelopes that have run out of ttl or max_recursive_contact,
// otherwise samples a random fanout of contacts (excluding the
// envelope's origin sender) and posts the envelope to each in turn,
// stopping early once a delivery reaches the final recipient. Callers
// invoke this in its own goroutine so it never blocks the request
// that triggered it. Each invocation gets its own correlation id so
// its scattered log lines can be told apart from concurrent tasks.
func Dispatch(env identity.Envelope, originSender string, contacts *Contacts, sender Sender) {
	taskID := uuid.NewString()

	if env.TTL <= 0 || env.MaxRecursiveContact <= 0 {
		log.Printf("[overlay] forward task %s dropped: ttl=%d max_recursive_contact=%d", taskID, env.TTL, env.MaxRecursiveContact)
		return
	}

	candidates := contacts.List(originSender)
	if len(candidates) == 0 {
		log.Printf("[overlay] forward task %s dropped: no contacts to fan out to", taskID)
		return
	}

	n := FanoutCount(len(candidates))
	selected := SelectFanout(candidates, n)
	log.Printf("[overlay] forward task %s fanning out to %d/%d contacts", taskID, len(selected), len(candidates))

	for _, contact := range selected {
		delivered := sender.Send(contact, env)
		if delivered && contact.Identifier == env.RecipientIdentifier {
			contacts.DeleteForwardRecords(env.RecipientIdentifier)
			log.Printf("[overlay] forward task %s delivered to final recipient %s", taskID, contact.Identifier)
			return
		}
	}
}

// InjectIntoOverlay implements the originator fallback of spec §4.5:
// when direct delivery to the known recipient address fails, the
// sender posts the envelope to every other known contact exactly
// once. This is the only place broadcast, rather than sampling, is
// used.
func InjectIntoOverlay(env identity.Envelope, selfIdentifier string, contacts *Contacts, sender Sender) {
	for _, contact := range contacts.List(selfIdentifier) {
		sender.Send(contact, env)
	}
}
