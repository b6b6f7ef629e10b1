package identity

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	mcrypto "github.com/hoshizora/meshnode/crypto"
)

// Envelope is the wire shape of a sealed message per spec §4.2 and
// §6; every binary field is base64url-encoded so the whole thing
// round-trips through JSON untouched.
type Envelope struct {
	CurrentNodeIdentifier  string `json:"current_node_identifier"`
	RecipientIdentifier    string `json:"recipient_identifier"`
	SharedSecretCiphertext string `json:"shared_secret_ciphertext"`
	MessageCiphertext      string `json:"message_ciphertext"`
	Nonce                  string `json:"nonce"`
	Signature              string `json:"signature"`
	TTL                    int    `json:"ttl"`
	MaxRecursiveContact    int    `json:"max_recursive_contact"`
}

// innerPayload is the canonical, signed-and-encrypted body of a
// message. Field order and naming match spec §4.2 exactly; Go's
// encoding/json already sorts map keys are not involved here since
// this is a struct, so encoding is deterministic by construction.
type innerPayload struct {
	IP                 string `json:"ip"`
	Message            string `json:"message"`
	SenderID           string `json:"sender_id"`
	Timestamp          int64  `json:"timestamp"`
	SignaturePublicKey string `json:"signature_public_key"`
	KEMPublicKey       string `json:"kem_public_key"`
}

// OpenedMessage is the structured record produced by Open.
type OpenedMessage struct {
	SenderID           string
	Message            []byte
	SignaturePublicKey []byte
	SenderDest         string
	KEMPublicKey       []byte
	Timestamp          time.Time
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

// Seal builds and encrypts an envelope addressed to recipient,
// carrying plaintext m, on behalf of sender at time t. senderAddr is
// the sender's own reachable address, embedded in the payload so the
// recipient can reply without a DHT lookup.
func Seal(sender *Keys, senderAddr string, recipientIdentifier string, recipientKEMPub mcrypto.KEMPublicKey, m []byte, t time.Time, ttl, maxRecursiveContact int) (*Envelope, error) {
	senderKEMPubBytes, err := mcrypto.MarshalKEMPublicKey(sender.KEMPublic)
	if err != nil {
		return nil, err
	}
	senderSigPubBytes, err := mcrypto.MarshalSigPublicKey(sender.SigPublic)
	if err != nil {
		return nil, err
	}

	payload := innerPayload{
		IP:                 senderAddr,
		Message:            b64(m),
		SenderID:           sender.Identifier,
		Timestamp:          t.Unix(),
		SignaturePublicKey: b64(senderSigPubBytes),
		KEMPublicKey:       b64(senderKEMPubBytes),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal payload: %w", err)
	}

	sharedSecret, kct, err := mcrypto.KEMEncapsulate(recipientKEMPub)
	if err != nil {
		return nil, fmt.Errorf("identity: encapsulate: %w", err)
	}
	key := mcrypto.DeriveKey(sharedSecret)

	ct, nonce, err := mcrypto.Encrypt(key, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("identity: seal payload: %w", err)
	}

	// The signature covers the cleartext payload, not the ciphertext:
	// intentional, see spec §4.2.
	sig := mcrypto.Sign(sender.SigPrivate, payloadBytes)

	return &Envelope{
		CurrentNodeIdentifier:  sender.Identifier,
		RecipientIdentifier:    recipientIdentifier,
		SharedSecretCiphertext: b64(kct),
		MessageCiphertext:      b64(ct),
		Nonce:                  b64(nonce),
		Signature:              b64(sig),
		TTL:                    ttl,
		MaxRecursiveContact:    maxRecursiveContact,
	}, nil
}

// Open decrypts and verifies an envelope addressed to self, returning
// the structured message record. Errors are the typed sentinels from
// package crypto: ErrDecrypt, ErrSignature, ErrIdentity, and
// ErrKeyShape (wrapped) for malformed fields or key material.
func Open(recipient *Keys, env *Envelope) (*OpenedMessage, error) {
	kct, err := unb64(env.SharedSecretCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: shared secret ciphertext: %v", mcrypto.ErrKeyShape, err)
	}
	ct, err := unb64(env.MessageCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: message ciphertext: %v", mcrypto.ErrKeyShape, err)
	}
	nonce, err := unb64(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", mcrypto.ErrKeyShape, err)
	}
	sig, err := unb64(env.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", mcrypto.ErrKeyShape, err)
	}

	sharedSecret, err := mcrypto.KEMDecapsulate(recipient.KEMPrivate, kct)
	if err != nil {
		return nil, fmt.Errorf("identity: decapsulate: %w", err)
	}
	key := mcrypto.DeriveKey(sharedSecret)

	payloadBytes, err := mcrypto.Decrypt(key, nonce, ct)
	if err != nil {
		return nil, mcrypto.ErrDecrypt
	}

	var payload innerPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", mcrypto.ErrKeyShape, err)
	}

	senderSigPubBytes, err := unb64(payload.SignaturePublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sender sig key: %v", mcrypto.ErrKeyShape, err)
	}
	senderKEMPubBytes, err := unb64(payload.KEMPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sender kem key: %v", mcrypto.ErrKeyShape, err)
	}
	senderSigPub, err := mcrypto.UnmarshalSigPublicKey(senderSigPubBytes)
	if err != nil {
		return nil, err
	}

	if !mcrypto.Verify(senderSigPub, payloadBytes, sig) {
		return nil, mcrypto.ErrSignature
	}

	expectedID := Identifier(senderKEMPubBytes, senderSigPubBytes)
	if !bytes.Equal([]byte(expectedID), []byte(payload.SenderID)) {
		return nil, mcrypto.ErrIdentity
	}

	message, err := unb64(payload.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: message: %v", mcrypto.ErrKeyShape, err)
	}

	return &OpenedMessage{
		SenderID:           payload.SenderID,
		Message:            message,
		SignaturePublicKey: senderSigPubBytes,
		SenderDest:         payload.IP,
		KEMPublicKey:       senderKEMPubBytes,
		Timestamp:          time.Unix(payload.Timestamp, 0),
	}, nil
}
