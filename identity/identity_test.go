package identity

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIdentifierDeterministic(t *testing.T) {
	kemPub := []byte("kem-public-key-bytes")
	sigPub := []byte("sig-public-key-bytes")

	id1 := Identifier(kemPub, sigPub)
	id2 := Identifier(kemPub, sigPub)
	require.Equal(t, id1, id2)

	id3 := Identifier([]byte("different-kem-key"), sigPub)
	require.NotEqual(t, id1, id3)
}

func TestKeyBundleSaveLoadRoundTrip(t *testing.T) {
	bundle, keys, err := CreateKeyBundle([]byte("correct horse"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keybundle.json")
	require.NoError(t, SaveKeyBundle(path, bundle))

	loaded, err := LoadKeyBundle(path)
	require.NoError(t, err)

	reopened, err := loaded.Open([]byte("correct horse"))
	require.NoError(t, err)
	require.Equal(t, keys.Identifier, reopened.Identifier)
}

func TestKeyBundleOpenWrongPassword(t *testing.T) {
	bundle, _, err := CreateKeyBundle([]byte("right password"))
	require.NoError(t, err)

	_, err = bundle.Open([]byte("wrong password"))
	require.Error(t, err)
}

func TestEnvelopeSealOpenRoundTrip(t *testing.T) {
	_, sender, err := CreateKeyBundle([]byte("sender-pw"))
	require.NoError(t, err)
	_, recipient, err := CreateKeyBundle([]byte("recipient-pw"))
	require.NoError(t, err)

	env, err := Seal(sender, "127.0.0.1:9000", recipient.Identifier, recipient.KEMPublic,
		[]byte("hello mesh"), time.Now(), 5, 3)
	require.NoError(t, err)
	require.Equal(t, sender.Identifier, env.CurrentNodeIdentifier)
	require.Equal(t, recipient.Identifier, env.RecipientIdentifier)

	msg, err := Open(recipient, env)
	require.NoError(t, err)
	require.Equal(t, "hello mesh", string(msg.Message))
	require.Equal(t, sender.Identifier, msg.SenderID)
	require.Equal(t, "127.0.0.1:9000", msg.SenderDest)
}

func TestEnvelopeOpenRejectsTamperedCiphertext(t *testing.T) {
	_, sender, err := CreateKeyBundle([]byte("sender-pw"))
	require.NoError(t, err)
	_, recipient, err := CreateKeyBundle([]byte("recipient-pw"))
	require.NoError(t, err)

	env, err := Seal(sender, "127.0.0.1:9000", recipient.Identifier, recipient.KEMPublic,
		[]byte("hello mesh"), time.Now(), 5, 3)
	require.NoError(t, err)

	decoded, err := unb64(env.MessageCiphertext)
	require.NoError(t, err)
	decoded[0] ^= 0xFF
	env.MessageCiphertext = b64(decoded)

	_, err = Open(recipient, env)
	require.Error(t, err)
}

func TestEnvelopeOpenRejectsWrongRecipient(t *testing.T) {
	_, sender, err := CreateKeyBundle([]byte("sender-pw"))
	require.NoError(t, err)
	_, recipient, err := CreateKeyBundle([]byte("recipient-pw"))
	require.NoError(t, err)
	_, other, err := CreateKeyBundle([]byte("other-pw"))
	require.NoError(t, err)

	env, err := Seal(sender, "127.0.0.1:9000", recipient.Identifier, recipient.KEMPublic,
		[]byte("hello mesh"), time.Now(), 5, 3)
	require.NoError(t, err)

	_, err = Open(other, env)
	require.Error(t, err)
}
