package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	mcrypto "github.com/hoshizora/meshnode/crypto"
)

// keycheckMessage is HMAC'd under the scrypt-derived key so a wrong
// password can be rejected before any AEAD decryption is attempted.
const keycheckMessage = "keycheck"

// KeyBundle is the at-rest representation of a user's identity: both
// public keys in the clear, both private keys sealed under a
// password-derived AES-256-GCM key. Field names match the JSON shape
// in spec §3 so the file stays human-inspectable.
type KeyBundle struct {
	Salt                []byte `json:"salt"`
	Nonce               []byte `json:"nonce"`
	KEMPublic           []byte `json:"kem_public"`
	SigPublic           []byte `json:"sig_public"`
	KEMPrivateEncrypted []byte `json:"kem_private_encrypted"`
	SigPrivateEncrypted []byte `json:"sig_private_encrypted"`
	Keycheck            []byte `json:"keycheck"`
}

// Keys is the decrypted, in-memory view of a KeyBundle plus its
// derived identifier.
type Keys struct {
	Identifier string
	KEMPublic  mcrypto.KEMPublicKey
	KEMPrivate mcrypto.KEMPrivateKey
	SigPublic  mcrypto.SigPublicKey
	SigPrivate mcrypto.SigPrivateKey
}

func deriveBundleKey(password []byte, salt []byte) ([]byte, error) {
	return mcrypto.ScryptKey(password, salt)
}

func keycheckOf(key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(keycheckMessage))
	return mac.Sum(nil)
}

// CreateKeyBundle generates a fresh KEM/signature key pair, seals the
// private halves under password, and returns both the on-disk bundle
// and the decrypted in-memory Keys.
func CreateKeyBundle(password []byte) (*KeyBundle, *Keys, error) {
	kemSK, kemPK, err := mcrypto.KEMKeypair()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: generate kem keys: %w", err)
	}
	sigSK, sigPK, err := mcrypto.SigKeypair()
	if err != nil {
		return nil, nil, fmt.Errorf("identity: generate sig keys: %w", err)
	}

	kemPKBytes, err := mcrypto.MarshalKEMPublicKey(kemPK)
	if err != nil {
		return nil, nil, err
	}
	sigPKBytes, err := mcrypto.MarshalSigPublicKey(sigPK)
	if err != nil {
		return nil, nil, err
	}
	kemSKBytes, err := mcrypto.MarshalKEMPrivateKey(kemSK)
	if err != nil {
		return nil, nil, err
	}
	sigSKBytes, err := mcrypto.MarshalSigPrivateKey(sigSK)
	if err != nil {
		return nil, nil, err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("identity: salt generation: %w", err)
	}
	derived, err := deriveBundleKey(password, salt)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: derive bundle key: %w", err)
	}

	plaintext := append(append([]byte{}, kemSKBytes...), sigSKBytes...)
	sealed, nonce, err := mcrypto.Encrypt(derived, plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: seal private keys: %w", err)
	}

	bundle := &KeyBundle{
		Salt:                salt,
		Nonce:               nonce,
		KEMPublic:           kemPKBytes,
		SigPublic:           sigPKBytes,
		KEMPrivateEncrypted: sealed[:len(kemSKBytes)],
		SigPrivateEncrypted: sealed[len(kemSKBytes):],
		Keycheck:            keycheckOf(derived),
	}

	keys := &Keys{
		Identifier: Identifier(kemPKBytes, sigPKBytes),
		KEMPublic:  kemPK,
		KEMPrivate: kemSK,
		SigPublic:  sigPK,
		SigPrivate: sigSK,
	}
	return bundle, keys, nil
}

// Open decrypts a KeyBundle's private-key material under password.
// The HMAC keycheck is verified first so a wrong password surfaces as
// ErrAuthentication without ever touching the AEAD ciphertext.
func (b *KeyBundle) Open(password []byte) (*Keys, error) {
	derived, err := deriveBundleKey(password, b.Salt)
	if err != nil {
		return nil, fmt.Errorf("identity: derive bundle key: %w", err)
	}
	if !hmac.Equal(keycheckOf(derived), b.Keycheck) {
		return nil, mcrypto.ErrAuthentication
	}

	sealed := append(append([]byte{}, b.KEMPrivateEncrypted...), b.SigPrivateEncrypted...)
	plaintext, err := mcrypto.Decrypt(derived, b.Nonce, sealed)
	if err != nil {
		return nil, fmt.Errorf("identity: unseal private keys: %w", err)
	}

	kemSKBytes := plaintext[:len(b.KEMPrivateEncrypted)]
	sigSKBytes := plaintext[len(b.KEMPrivateEncrypted):]

	kemPK, err := mcrypto.UnmarshalKEMPublicKey(b.KEMPublic)
	if err != nil {
		return nil, err
	}
	sigPK, err := mcrypto.UnmarshalSigPublicKey(b.SigPublic)
	if err != nil {
		return nil, err
	}
	kemSK, err := mcrypto.UnmarshalKEMPrivateKey(kemSKBytes)
	if err != nil {
		return nil, err
	}
	sigSK, err := mcrypto.UnmarshalSigPrivateKey(sigSKBytes)
	if err != nil {
		return nil, err
	}

	return &Keys{
		Identifier: Identifier(b.KEMPublic, b.SigPublic),
		KEMPublic:  kemPK,
		KEMPrivate: kemSK,
		SigPublic:  sigPK,
		SigPrivate: sigSK,
	}, nil
}

// keyBundleJSON mirrors KeyBundle with base64-encoded byte fields, so
// the file on disk stays readable text rather than a JSON byte-array
// dump.
type keyBundleJSON struct {
	Salt                string `json:"salt"`
	Nonce               string `json:"nonce"`
	KEMPublic           string `json:"kem_public"`
	SigPublic           string `json:"sig_public"`
	KEMPrivateEncrypted string `json:"kem_private_encrypted"`
	SigPrivateEncrypted string `json:"sig_private_encrypted"`
	Keycheck            string `json:"keycheck"`
}

func enc(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func dec(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// SaveKeyBundle writes a KeyBundle to path as human-readable,
// base64-field JSON.
func SaveKeyBundle(path string, b *KeyBundle) error {
	doc := keyBundleJSON{
		Salt:                enc(b.Salt),
		Nonce:               enc(b.Nonce),
		KEMPublic:           enc(b.KEMPublic),
		SigPublic:           enc(b.SigPublic),
		KEMPrivateEncrypted: enc(b.KEMPrivateEncrypted),
		SigPrivateEncrypted: enc(b.SigPrivateEncrypted),
		Keycheck:            enc(b.Keycheck),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal key bundle: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("identity: write key bundle: %w", err)
	}
	return nil
}

// LoadKeyBundle reads a KeyBundle previously written by SaveKeyBundle.
func LoadKeyBundle(path string) (*KeyBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read key bundle: %w", err)
	}
	var doc keyBundleJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("identity: unmarshal key bundle: %w", err)
	}

	fields := []*string{&doc.Salt, &doc.Nonce, &doc.KEMPublic, &doc.SigPublic,
		&doc.KEMPrivateEncrypted, &doc.SigPrivateEncrypted, &doc.Keycheck}
	decoded := make([][]byte, len(fields))
	for i, f := range fields {
		b, err := dec(*f)
		if err != nil {
			return nil, fmt.Errorf("identity: decode key bundle field: %w", err)
		}
		decoded[i] = b
	}

	return &KeyBundle{
		Salt:                decoded[0],
		Nonce:               decoded[1],
		KEMPublic:           decoded[2],
		SigPublic:           decoded[3],
		KEMPrivateEncrypted: decoded[4],
		SigPrivateEncrypted: decoded[5],
		Keycheck:            decoded[6],
	}, nil
}
