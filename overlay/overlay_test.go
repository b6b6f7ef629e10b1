package overlay

import (
	"testing"
	"time"

	"github.com/hoshizora/meshnode/identity"
	"github.com/stretchr/testify/require"
)

func TestSeenHistoryDedup(t *testing.T) {
	seen := NewSeenHistory()
	require.False(t, seen.Seen("sig-1"))
	seen.Add("sig-1", time.Now())
	require.True(t, seen.Seen("sig-1"))
}

func TestHandleInboundIdempotent(t *testing.T) {
	seen := NewSeenHistory()
	calls := 0
	env := &identity.Envelope{Signature: "sig-a", RecipientIdentifier: "me"}

	out := HandleInbound(env, "me", seen, func(e *identity.Envelope) error {
		calls++
		return nil
	})
	require.True(t, out.ForMe)
	require.Equal(t, StatusOK, out.Status)
	require.Equal(t, 1, calls)

	out2 := HandleInbound(env, "me", seen, func(e *identity.Envelope) error {
		calls++
		return nil
	})
	require.Equal(t, StatusOK, out2.Status)
	require.False(t, out2.ForMe)
	require.Equal(t, 1, calls, "duplicate signature must not re-deliver")
}

func TestHandleInboundForwardPathForOthers(t *testing.T) {
	seen := NewSeenHistory()
	env := &identity.Envelope{Signature: "sig-b", RecipientIdentifier: "someone-else", CurrentNodeIdentifier: "origin"}

	out := HandleInbound(env, "me", seen, func(e *identity.Envelope) error {
		t.Fatal("deliverLocally must not run for envelopes not addressed to self")
		return nil
	})
	require.True(t, out.ForwardPath)
	require.Equal(t, "origin", out.OriginSender)
}

func TestPrepareForwardRecordsForwardRecordForKnownContact(t *testing.T) {
	contacts := NewContacts()
	contacts.Add(Contact{Identifier: "recipient-1", Addr: "http://peer"})

	env := identity.Envelope{RecipientIdentifier: "recipient-1", TTL: 5, MaxRecursiveContact: 5}
	out := PrepareForward(env, "self", contacts)

	require.Equal(t, "self", out.CurrentNodeIdentifier)
	require.LessOrEqual(t, out.TTL, 5)
	require.GreaterOrEqual(t, out.TTL, 3)
	require.Len(t, contacts.GetForwardRecords("recipient-1"), 1)
}

func TestFanoutCountWithinBounds(t *testing.T) {
	for _, n := range []int{1, 2, 3, 10, 37, 100} {
		count := FanoutCount(n)
		require.GreaterOrEqual(t, count, 1)
		require.LessOrEqual(t, count, n)
	}
}

func TestSelectFanoutNoDuplicates(t *testing.T) {
	candidates := make([]Contact, 20)
	for i := range candidates {
		candidates[i] = Contact{Identifier: string(rune('a' + i))}
	}
	selected := SelectFanout(candidates, 7)
	require.Len(t, selected, 7)

	seen := map[string]bool{}
	for _, c := range selected {
		require.False(t, seen[c.Identifier])
		seen[c.Identifier] = true
	}
}

type fakeSender struct {
	delivered map[string]bool
}

func (f *fakeSender) Send(contact Contact, env identity.Envelope) bool {
	return f.delivered[contact.Identifier]
}

func TestDispatchDropsWhenTTLExhausted(t *testing.T) {
	contacts := NewContacts()
	contacts.Add(Contact{Identifier: "a"})
	sender := &fakeSender{delivered: map[string]bool{}}

	Dispatch(identity.Envelope{TTL: 0, MaxRecursiveContact: 5}, "", contacts, sender)
	// no panic, no delivery attempted: nothing to assert on a fake with no calls recorded
}

func TestDispatchStopsAtFinalRecipient(t *testing.T) {
	contacts := NewContacts()
	contacts.Add(Contact{Identifier: "target"})
	contacts.AddForwardRecord(ForwardRecord{RecipientIdentifier: "target", CreatedAt: time.Now()})

	sender := &fakeSender{delivered: map[string]bool{"target": true}}
	Dispatch(identity.Envelope{TTL: 5, MaxRecursiveContact: 5, RecipientIdentifier: "target"}, "", contacts, sender)

	require.Empty(t, contacts.GetForwardRecords("target"))
}

func TestForwardRecordPurgedAfterTTL(t *testing.T) {
	contacts := NewContacts()
	contacts.AddForwardRecord(ForwardRecord{
		RecipientIdentifier: "old-recipient",
		CreatedAt:           time.Now().Add(-ForwardRecordTTL - time.Hour),
	})
	require.Empty(t, contacts.GetForwardRecords("old-recipient"))
}
