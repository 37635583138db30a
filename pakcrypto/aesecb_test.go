package pakcrypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestDecodeKeyRejectsWrongLength(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(make([]byte, 16))
	_, err := DecodeKey(short)
	require.Error(t, err)
}

func TestDecodeKeyAcceptsExact32(t *testing.T) {
	key := randomKey(t)
	b64 := base64.StdEncoding.EncodeToString(key)
	got, err := DecodeKey(b64)
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := randomKey(t)
	c, err := New(key)
	require.NoError(t, err)

	plaintext := bytes.Repeat([]byte{0xAB}, 16*4)
	buf := append([]byte(nil), plaintext...)

	require.NoError(t, c.EncryptInPlace(buf))
	require.NotEqual(t, plaintext, buf)

	require.NoError(t, c.DecryptInPlace(buf))
	require.Equal(t, plaintext, buf)
}

func TestNonBlockAlignedBufferRejected(t *testing.T) {
	c, err := New(randomKey(t))
	require.NoError(t, err)
	require.Error(t, c.EncryptInPlace(make([]byte, 15)))
	require.Error(t, c.DecryptInPlace(make([]byte, 17)))
}

func TestAlign(t *testing.T) {
	require.Equal(t, 0, Align(0))
	require.Equal(t, 16, Align(1))
	require.Equal(t, 16, Align(16))
	require.Equal(t, 32, Align(17))
}
