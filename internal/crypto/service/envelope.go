package service

import (
	"context"

	cryptoDomain "github.com/allisson/strongroom/internal/crypto/domain"
	apperrors "github.com/allisson/strongroom/internal/errors"
	secretsDomain "github.com/allisson/strongroom/internal/secrets/domain"
)

// Envelope wraps an Encryptor with the integrity checks every decryption must
// pass: the key identity reported by the service must match the group's
// registered key, and the context bound to the ciphertext must exactly contain
// the expected context. Any mismatch fails closed.
type Envelope struct {
	encryptor Encryptor
	strength  cryptoDomain.Strength
}

// NewEnvelope creates an envelope for the given encryption strength. The
// strength is fixed for the envelope's lifetime.
func NewEnvelope(encryptor Encryptor, strength cryptoDomain.Strength) (*Envelope, error) {
	if _, err := strength.KeyLength(); err != nil {
		return nil, err
	}
	return &Envelope{encryptor: encryptor, strength: strength}, nil
}

// Strength returns the envelope's encryption strength.
func (e *Envelope) Strength() cryptoDomain.Strength {
	return e.strength
}

// Seal encrypts plaintext with the encryption context bound as authenticated
// data.
func (e *Envelope) Seal(
	ctx context.Context,
	plaintext []byte,
	ec cryptoDomain.EncryptionContext,
) ([]byte, error) {
	ciphertext, err := e.encryptor.Encrypt(ctx, plaintext, ec)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to seal payload")
	}
	return ciphertext, nil
}

// Open decrypts a ciphertext and verifies its integrity against the expected
// context and key identity. On any mismatch the plaintext is shredded and an
// integrity error returned; such errors must never be retried.
func (e *Envelope) Open(
	ctx context.Context,
	ciphertext []byte,
	expected cryptoDomain.EncryptionContext,
	expectedKeyID string,
) ([]byte, error) {
	plaintext, keyID, returned, err := e.encryptor.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open payload")
	}

	if expectedKeyID != "" && keyID != expectedKeyID {
		secretsDomain.Zero(plaintext)
		return nil, apperrors.Wrapf(apperrors.ErrIntegrity,
			"payload was decrypted by key %q, group key is %q", keyID, expectedKeyID)
	}

	if err := expected.VerifyReturned(returned); err != nil {
		secretsDomain.Zero(plaintext)
		return nil, err
	}

	return plaintext, nil
}

// KeyARN returns the identity of the group's key, for decrypt-time key
// verification.
func (e *Envelope) KeyARN(ctx context.Context) (string, error) {
	return e.encryptor.ARN(ctx)
}

// RandomSource adapts the encryption service's secure random generator to the
// payload codec's random source.
func (e *Envelope) RandomSource(ctx context.Context) secretsDomain.RandomSource {
	return func(n int) ([]byte, error) {
		return e.encryptor.GenerateRandom(ctx, n)
	}
}

// GenerateRandom returns n cryptographically secure random bytes from the
// encryption service, for secret-value generation.
func (e *Envelope) GenerateRandom(ctx context.Context, n int) ([]byte, error) {
	return e.encryptor.GenerateRandom(ctx, n)
}
