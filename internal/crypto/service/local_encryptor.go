package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"gocloud.dev/secrets"
	"gocloud.dev/secrets/localsecrets"
	"golang.org/x/crypto/scrypt"

	cryptoDomain "github.com/allisson/strongroom/internal/crypto/domain"
	apperrors "github.com/allisson/strongroom/internal/errors"
	secretsDomain "github.com/allisson/strongroom/internal/secrets/domain"
)

// scrypt parameters for deriving the local master key from a passphrase.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	localKeySize = 32
)

// localBlob is the authenticated plaintext handed to the local keeper. The
// keeper has no native authenticated-data support, so the context travels
// inside the sealed blob and is returned to the caller for verification.
type localBlob struct {
	Context   map[string]string `json:"context"`
	Plaintext []byte            `json:"plaintext"`
}

// LocalEncryptor implements Encryptor on a passphrase-derived key held in
// process memory, for file-backed and in-memory deployments that run without
// an external encryption service.
type LocalEncryptor struct {
	keeper *secrets.Keeper
	keyID  string

	mu      sync.Mutex
	created bool
}

// NewLocalEncryptor derives the group's master key from the passphrase and
// salt. The same passphrase and salt always derive the same key, so blobs
// sealed in one process open in another.
func NewLocalEncryptor(passphrase string, salt []byte) (*LocalEncryptor, error) {
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, localKeySize)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to derive local key")
	}
	defer secretsDomain.Zero(derived)

	var key [localKeySize]byte
	copy(key[:], derived)

	digest := sha256.Sum256(key[:])
	return &LocalEncryptor{
		keeper: localsecrets.NewKeeper(key),
		keyID:  "local/" + hex.EncodeToString(digest[:8]),
	}, nil
}

// Encrypt seals the plaintext together with its encryption context.
func (l *LocalEncryptor) Encrypt(
	ctx context.Context,
	plaintext []byte,
	ec cryptoDomain.EncryptionContext,
) ([]byte, error) {
	raw, err := json.Marshal(localBlob{Context: ec, Plaintext: plaintext})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode local blob")
	}
	defer secretsDomain.Zero(raw)

	ciphertext, err := l.keeper.Encrypt(ctx, raw)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encrypt local blob")
	}
	return ciphertext, nil
}

// Decrypt opens a ciphertext and returns the context sealed with it.
func (l *LocalEncryptor) Decrypt(
	ctx context.Context,
	ciphertext []byte,
) ([]byte, string, map[string]string, error) {
	raw, err := l.keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, "", nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, err.Error())
	}
	defer secretsDomain.Zero(raw)

	var blob localBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, "", nil, apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "malformed local blob")
	}
	return blob.Plaintext, l.keyID, blob.Context, nil
}

// GenerateRandom returns n secure random bytes.
func (l *LocalEncryptor) GenerateRandom(_ context.Context, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, apperrors.Wrap(err, "failed to generate random bytes")
	}
	return b, nil
}

// CreateKey marks the derived key as provisioned. The key material itself
// already exists; this only enforces the same create-once contract as a
// managed key service.
func (l *LocalEncryptor) CreateKey(_ context.Context, allowKeyReuse bool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.created && !allowKeyReuse {
		return "", apperrors.Wrapf(apperrors.ErrAlreadyExists, "local key %s", l.keyID)
	}
	l.created = true
	return l.keyID, nil
}

// ScheduleKeyDeletion releases the provisioned marker. Derived key material
// cannot be destroyed ahead of the passphrase, so deletion is immediate.
func (l *LocalEncryptor) ScheduleKeyDeletion(_ context.Context) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.created {
		return time.Time{}, apperrors.Wrapf(apperrors.ErrDoesNotExist, "local key %s", l.keyID)
	}
	l.created = false
	return time.Now(), nil
}

// Exists reports whether the key has been provisioned.
func (l *LocalEncryptor) Exists(_ context.Context, allowKeyReuse bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if allowKeyReuse {
		return false, nil
	}
	return l.created, nil
}

// ARN returns the identity of the derived key.
func (l *LocalEncryptor) ARN(_ context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.created {
		return "", apperrors.Wrapf(apperrors.ErrDoesNotExist, "local key %s", l.keyID)
	}
	return l.keyID, nil
}
