package domain

import (
	"crypto/sha256"
	"time"
)

// RawSecretEntry is the unit persisted in a backend store: one immutable
// version of a secret. (Identifier, Version) is unique; Version is assigned by
// the manager as current max + 1. EncryptedPayload is opaque ciphertext; its
// digest serves as the optimistic-lock token for conditional updates.
type RawSecretEntry struct {
	// Identifier is the partition key of the entry.
	Identifier SecretIdentifier
	// Version is the sort key, monotonically increasing per identifier.
	Version uint64
	// State is the lifecycle state of this version.
	State State
	// NotBefore is the optional start of the activation window.
	NotBefore *time.Time
	// NotAfter is the optional end of the activation window.
	NotAfter *time.Time
	// EncryptedPayload is the sealed EncryptionPayload bytes.
	EncryptedPayload []byte
}

// Digest returns the SHA-256 digest of the encrypted payload. It is stored
// alongside the entry and must match on every conditional update.
func (e *RawSecretEntry) Digest() []byte {
	sum := sha256.Sum256(e.EncryptedPayload)
	return sum[:]
}

// Active reports whether the entry is usable at the given instant: state
// ENABLED and now within the [NotBefore, NotAfter] window where present.
func (e *RawSecretEntry) Active(now time.Time) bool {
	if e.State != StateEnabled {
		return false
	}
	if e.NotBefore != nil && now.Before(*e.NotBefore) {
		return false
	}
	if e.NotAfter != nil && now.After(*e.NotAfter) {
		return false
	}
	return true
}

// Clone returns a deep copy of the entry.
func (e *RawSecretEntry) Clone() *RawSecretEntry {
	clone := *e
	if e.NotBefore != nil {
		t := *e.NotBefore
		clone.NotBefore = &t
	}
	if e.NotAfter != nil {
		t := *e.NotAfter
		clone.NotAfter = &t
	}
	clone.EncryptedPayload = append([]byte(nil), e.EncryptedPayload...)
	return &clone
}

// SecretEntry is the caller-facing composite of a decrypted EncryptionPayload
// merged with its RawSecretEntry version/state/window metadata. Derived, never
// persisted directly. Holds secret material; call Shred after use.
type SecretEntry struct {
	Identifier SecretIdentifier
	Version    uint64
	State      State
	NotBefore  *time.Time
	NotAfter   *time.Time

	Value      SecretValue
	UserData   []byte
	Created    time.Time
	Modified   time.Time
	CreatedBy  string
	ModifiedBy string
	Comment    string
}

// Shred best-effort zeroes the secret material held by the entry.
func (e *SecretEntry) Shred() {
	Zero(e.Value.Data)
	Zero(e.UserData)
}
