package overlay

import (
	cryptorand "crypto/rand"
	"encoding/json"
	"log"
	"math/big"
	"math/rand"
	"time"

	"github.com/hoshizora/meshnode/identity"
)

// randomDecrement returns a uniform random integer in [0, 2], the
// per-hop decrement applied to both ttl and max_recursive_contact so
// an observer cannot estimate hop distance from either counter.
func randomDecrement() int { return rand.Intn(3) }

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// InboundOutcome is the result of applying the inbound policy to a
// received envelope.
type InboundOutcome struct {
	Status       string // StatusOK or StatusError
	ForMe        bool
	ForwardPath  bool
	OriginSender string // E.current_node_identifier, excluded from the fanout pool
}

// HandleInbound applies spec §4.5's inbound policy to a received
// envelope: duplicate signatures are dropped (idempotent delivery);
// envelopes addressed to self are opened via deliverLocally; anything
// else enters the forwarding path, left to the caller to drive via
// PrepareForward and Dispatch.
func HandleInbound(env *identity.Envelope, selfIdentifier string, seen *SeenHistory, deliverLocally func(*identity.Envelope) error) InboundOutcome {
	if seen.Seen(env.Signature) {
		return InboundOutcome{Status: StatusOK}
	}
	seen.Add(env.Signature, time.Now())

	if env.RecipientIdentifier == selfIdentifier {
		if err := deliverLocally(env); err != nil {
			return InboundOutcome{Status: StatusError}
		}
		return InboundOutcome{Status: StatusOK, ForMe: true}
	}

	return InboundOutcome{
		Status:       StatusOK,
		ForwardPath:  true,
		OriginSender: env.CurrentNodeIdentifier,
	}
}

// PrepareForward builds the outgoing envelope copy for the forwarding
// path (spec §4.5 step 2-4): if the recipient is a known contact, a
// ForwardRecord is recorded for potential later direct delivery and
// max_recursive_contact is decremented by a uniform random integer in
// [0, 2]; current_node_identifier is stamped to self and ttl is
// independently decremented by its own uniform random integer.
func PrepareForward(env identity.Envelope, selfIdentifier string, contacts *Contacts) identity.Envelope {
	if contacts.Has(env.RecipientIdentifier) {
		if raw, err := json.Marshal(env); err != nil {
			log.Printf("[overlay] marshal envelope for forward record failed: %v", err)
		} else {
			contacts.AddForwardRecord(ForwardRecord{
				RecipientIdentifier: env.RecipientIdentifier,
				EnvelopeJSON:        raw,
				CreatedAt:           time.Now(),
			})
		}
		env.MaxRecursiveContact -= randomDecrement()
	}
	env.CurrentNodeIdentifier = selfIdentifier
	env.TTL -= randomDecrement()
	return env
}

// FanoutCount picks the number of contacts to forward to out of n
// available candidates: a uniform random integer in
// [max(1, floor(0.3n)), floor(0.7n)], clamped to [1, n].
func FanoutCount(n int) int {
	if n <= 0 {
		return 0
	}
	min := int(0.3 * float64(n))
	if min < 1 {
		min = 1
	}
	max := int(0.7 * float64(n))
	if max < min {
		max = min
	}
	if max > n {
		max = n
	}
	return min + rand.Intn(max-min+1)
}

// SelectFanout samples n contacts from candidates without
// replacement, using a Fisher-Yates shuffle drawn from a cryptographic
// RNG (spec §9: the fanout selection step specifically should resist
// adversarial inference, unlike the coarser ttl/fanout-count
// decrements above).
func SelectFanout(candidates []Contact, n int) []Contact {
	if n >= len(candidates) {
		out := make([]Contact, len(candidates))
		copy(out, candidates)
		return out
	}
	shuffled := make([]Contact, len(candidates))
	copy(shuffled, candidates)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := cryptoIntn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

// cryptoIntn returns a uniform random integer in [0, n) drawn from
// crypto/rand, falling back to math/rand only if the system CSPRNG is
// unreadable (treated as practically impossible on any real host).
func cryptoIntn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := cryptorand.Int(cryptorand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return rand.Intn(n)
	}
	return int(v.Int64())
}
