package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	cryptoDomain "github.com/allisson/strongroom/internal/crypto/domain"
)

// AESGCMCipher provides authenticated encryption of entry payloads with a
// per-entry data key. The instance is stateless and safe for concurrent use;
// each encryption generates a fresh nonce.
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AES-GCM cipher for a 16- or 32-byte data key. A key
// size the primitive refuses is reported as the unlimited-strength crypto
// error rather than propagated raw.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		var keySizeErr aes.KeySizeError
		if errors.As(err, &keySizeErr) {
			return nil, fmt.Errorf("%d-byte data key: %w",
				len(key), cryptoDomain.ErrUnlimitedStrengthCrypto)
		}
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMCipher{aead: aead}, nil
}

// Encrypt seals plaintext with a random nonce, authenticating aad alongside.
// The returned ciphertext carries the authentication tag; the nonce must be
// stored with it.
func (a *AESGCMCipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = a.aead.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

// Decrypt opens a ciphertext with the nonce and aad used at encryption time.
// Authentication failure returns ErrDecryptionFailed without plaintext.
func (a *AESGCMCipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}
	return plaintext, nil
}
