package service

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/strongroom/internal/crypto/domain"
)

func TestAESGCMCipher(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	plaintext := []byte("super secret payload")
	aad := []byte("0=region\n1=group\n")

	t.Run("round trip", func(t *testing.T) {
		cipher, err := NewAESGCM(key)
		require.NoError(t, err)

		ciphertext, nonce, err := cipher.Encrypt(plaintext, aad)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		got, err := cipher.Decrypt(ciphertext, nonce, aad)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	})

	t.Run("distinct nonces per encryption", func(t *testing.T) {
		cipher, err := NewAESGCM(key)
		require.NoError(t, err)

		_, nonce1, err := cipher.Encrypt(plaintext, aad)
		require.NoError(t, err)
		_, nonce2, err := cipher.Encrypt(plaintext, aad)
		require.NoError(t, err)

		assert.NotEqual(t, nonce1, nonce2)
	})

	t.Run("tampered aad fails authentication", func(t *testing.T) {
		cipher, err := NewAESGCM(key)
		require.NoError(t, err)

		ciphertext, nonce, err := cipher.Encrypt(plaintext, aad)
		require.NoError(t, err)

		_, err = cipher.Decrypt(ciphertext, nonce, []byte("0=other\n"))
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("tampered ciphertext fails authentication", func(t *testing.T) {
		cipher, err := NewAESGCM(key)
		require.NoError(t, err)

		ciphertext, nonce, err := cipher.Encrypt(plaintext, aad)
		require.NoError(t, err)

		ciphertext[0] ^= 0xff
		_, err = cipher.Decrypt(ciphertext, nonce, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("wrong key fails authentication", func(t *testing.T) {
		cipher, err := NewAESGCM(key)
		require.NoError(t, err)
		other, err := NewAESGCM(bytes.Repeat([]byte{0x24}, 32))
		require.NoError(t, err)

		ciphertext, nonce, err := cipher.Encrypt(plaintext, aad)
		require.NoError(t, err)

		_, err = other.Decrypt(ciphertext, nonce, aad)
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
	})

	t.Run("16-byte key is accepted", func(t *testing.T) {
		_, err := NewAESGCM(bytes.Repeat([]byte{0x01}, 16))
		assert.NoError(t, err)
	})

	t.Run("unsupported key size", func(t *testing.T) {
		_, err := NewAESGCM(bytes.Repeat([]byte{0x01}, 64))
		assert.ErrorIs(t, err, cryptoDomain.ErrUnlimitedStrengthCrypto)
	})
}
