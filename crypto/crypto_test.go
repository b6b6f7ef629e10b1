package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKEMRoundTrip(t *testing.T) {
	sk, pk, err := KEMKeypair()
	require.NoError(t, err)

	ss1, ct, err := KEMEncapsulate(pk)
	require.NoError(t, err)

	ss2, err := KEMDecapsulate(sk, ct)
	require.NoError(t, err)
	require.Equal(t, ss1, ss2)
}

func TestSigRoundTrip(t *testing.T) {
	sk, pk, err := SigKeypair()
	require.NoError(t, err)

	msg := []byte("hello mesh")
	sig := Sign(sk, msg)
	require.True(t, Verify(pk, msg, sig))
	require.False(t, Verify(pk, []byte("tampered"), sig))
}

func TestAEADRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	ct, nonce, err := Encrypt(key, []byte("payload"))
	require.NoError(t, err)

	pt, err := Decrypt(key, nonce, ct)
	require.NoError(t, err)
	require.Equal(t, "payload", string(pt))

	ct[0] ^= 0xFF
	_, err = Decrypt(key, nonce, ct)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	ss := []byte("shared-secret-bytes")
	require.Equal(t, DeriveKey(ss), DeriveKey(ss))
	require.Len(t, DeriveKey(ss), 32)
}

func TestScryptKeyDeterministic(t *testing.T) {
	salt := make([]byte, 16)
	k1, err := ScryptKey([]byte("password"), salt)
	require.NoError(t, err)
	k2, err := ScryptKey([]byte("password"), salt)
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Len(t, k1, 32)
}
