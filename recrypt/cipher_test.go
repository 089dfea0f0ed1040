package recrypt

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomMessage(t *testing.T) []byte {
	t.Helper()
	msg := make([]byte, KeyMaterialSize)
	_, err := io.ReadFull(rand.Reader, msg)
	require.NoError(t, err)
	return msg
}

func randomIv(t *testing.T) Iv {
	t.Helper()
	iv, err := GenerateIv()
	require.NoError(t, err)
	return iv
}

func TestSymmetricCipher_RoundTrip(t *testing.T) {
	keyset, err := GenerateKeySet()
	require.NoError(t, err)

	// Run the key set through serialisation so the encoding is part of
	// the round trip.
	raw, err := keyset.Bytes()
	require.NoError(t, err)
	keyset, err = KeySetFromBytes(raw)
	require.NoError(t, err)

	msg := randomMessage(t)
	iv := randomIv(t)

	cipher := NewSymmetricCipher(keyset)
	ct, err := cipher.Encrypt(iv, msg)
	require.NoError(t, err)
	require.Len(t, ct, KeyMaterialSize+BlockSize)
	assert.NotEqual(t, msg, ct[:KeyMaterialSize])

	pt, err := cipher.Decrypt(iv, ct)
	require.NoError(t, err)
	assert.Equal(t, msg, pt)
}

func TestSymmetricCipher_AllOrNothing(t *testing.T) {
	keyset, err := GenerateKeySet()
	require.NoError(t, err)

	msg := randomMessage(t)
	iv := randomIv(t)
	cipher := NewSymmetricCipher(keyset)

	ct, err := cipher.Encrypt(iv, msg)
	require.NoError(t, err)

	// Flipping any single bit must destroy the whole message, not just
	// the block it lives in.
	for _, pos := range []int{0, 5, KeyMaterialSize / 2, len(ct) - 1} {
		corrupted := append([]byte(nil), ct...)
		corrupted[pos] ^= 0x01

		pt, err := cipher.Decrypt(iv, corrupted)
		require.NoError(t, err)
		assert.NotEqual(t, msg, pt, "bit flip at %d survived decryption", pos)
	}

	// A strict subset of the blocks must fail block decomposition.
	_, err = cipher.Decrypt(iv, ct[:len(ct)-BlockSize])
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestSymmetricCipher_MalformedInput(t *testing.T) {
	keyset, err := GenerateKeySet()
	require.NoError(t, err)
	cipher := NewSymmetricCipher(keyset)
	iv := randomIv(t)

	_, err = cipher.Encrypt(iv, make([]byte, 100))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = cipher.Decrypt(iv, make([]byte, 17))
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = cipher.Decrypt(iv, nil)
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestProxyCipher_ReencryptionRoundTrip(t *testing.T) {
	source, err := GenerateKeySet()
	require.NoError(t, err)
	target, err := GenerateKeySet()
	require.NoError(t, err)
	proxy := NewProxyKeySet(source, target)

	msg := randomMessage(t)
	iv := randomIv(t)

	ct, err := NewSymmetricCipher(source).Encrypt(iv, msg)
	require.NoError(t, err)

	rct, err := NewProxyCipher(proxy).Reencrypt(iv, ct)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(ct, rct))

	pt, err := NewSymmetricCipher(target).Decrypt(iv, rct)
	require.NoError(t, err)
	assert.Equal(t, msg, pt)

	// The source key set must no longer decrypt the re-encrypted form.
	wrong, err := NewSymmetricCipher(source).Decrypt(iv, rct)
	require.NoError(t, err)
	assert.NotEqual(t, msg, wrong)
}

func TestProxyCipher_Homomorphism(t *testing.T) {
	// Re-encrypting the same message from two different source key sets
	// into one target key set must converge on the same ciphertext.
	target, err := GenerateKeySet()
	require.NoError(t, err)

	msg := randomMessage(t)
	iv := randomIv(t)

	var results [][]byte
	for i := 0; i < 2; i++ {
		source, err := GenerateKeySet()
		require.NoError(t, err)

		ct, err := NewSymmetricCipher(source).Encrypt(iv, msg)
		require.NoError(t, err)

		rct, err := NewProxyCipher(NewProxyKeySet(source, target)).Reencrypt(iv, ct)
		require.NoError(t, err)
		results = append(results, rct)
	}

	assert.Equal(t, results[0], results[1])
}

func TestDeriveDataKey(t *testing.T) {
	server, err := GenerateKeySet()
	require.NoError(t, err)
	client, err := GenerateKeySet()
	require.NoError(t, err)
	proxy := NewProxyKeySet(server, client)

	iv := randomIv(t)
	material, err := NewSymmetricCipher(server).Encrypt(iv, randomMessage(t))
	require.NoError(t, err)

	key1, err := DeriveDataKey(proxy, iv, material)
	require.NoError(t, err)
	key2, err := DeriveDataKey(proxy, iv, material)
	require.NoError(t, err)

	// Deterministic in its inputs: the same key is re-derivable at
	// unseal time.
	assert.Equal(t, key1, key2)

	otherIv := randomIv(t)
	key3, err := DeriveDataKey(proxy, otherIv, material)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)

	_, err = DeriveDataKey(proxy, iv, material[:KeyMaterialSize-8])
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestProxyKeySet_Serialisation(t *testing.T) {
	source, err := GenerateKeySet()
	require.NoError(t, err)
	target, err := GenerateKeySet()
	require.NoError(t, err)

	proxy := NewProxyKeySet(source, target)
	raw, err := proxy.Bytes()
	require.NoError(t, err)

	parsed, err := ProxyKeySetFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, proxy, parsed)

	_, err = ProxyKeySetFromBytes([]byte("{"))
	assert.ErrorIs(t, err, ErrMalformedKeySet)
}
