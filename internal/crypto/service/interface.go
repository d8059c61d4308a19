// Package service implements the envelope-encryption layer: the external
// encryption-service contract, the data-key cipher, and the integrity checks
// applied to every decryption.
package service

import (
	"context"
	"time"

	cryptoDomain "github.com/allisson/strongroom/internal/crypto/domain"
)

// Encryptor is the contract of the external envelope-encryption service. One
// instance serves one secrets group and owns that group's master key.
type Encryptor interface {
	// Encrypt seals plaintext under the group's key, binding the encryption
	// context as additional authenticated data.
	Encrypt(ctx context.Context, plaintext []byte, ec cryptoDomain.EncryptionContext) ([]byte, error)

	// Decrypt opens a ciphertext, returning the plaintext, the identity of the
	// key that performed the decryption, and the context bound to the
	// ciphertext. Callers must verify both against their expectations.
	Decrypt(ctx context.Context, ciphertext []byte) (plaintext []byte, keyID string, returned map[string]string, err error)

	// GenerateRandom returns n cryptographically secure random bytes.
	GenerateRandom(ctx context.Context, n int) ([]byte, error)

	// CreateKey provisions the group's master key. With allowKeyReuse an
	// existing disabled or pending-deletion key is re-enabled instead of
	// being treated as a conflict.
	CreateKey(ctx context.Context, allowKeyReuse bool) (string, error)

	// ScheduleKeyDeletion schedules delayed deletion of the group's key and
	// returns the deletion date.
	ScheduleKeyDeletion(ctx context.Context) (time.Time, error)

	// Exists reports whether a conflicting key already exists. With
	// allowKeyReuse, a disabled or pending-deletion key does not count as a
	// conflict.
	Exists(ctx context.Context, allowKeyReuse bool) (bool, error)

	// ARN returns the identity of the group's key.
	ARN(ctx context.Context) (string, error)
}
