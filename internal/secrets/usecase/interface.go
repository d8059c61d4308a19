// Package usecase implements the secret manager: the consumer-facing
// operations over one group's encrypted entry store.
package usecase

import (
	"context"
	"time"

	"github.com/allisson/strongroom/internal/secrets/domain"
)

// SecretInput carries the caller-supplied material of a new secret version.
type SecretInput struct {
	// Value is the secret value.
	Value domain.SecretValue
	// UserData is optional free-form caller data stored alongside the value.
	UserData []byte
	// Comment is an optional human comment.
	Comment string
	// NotBefore is the optional start of the activation window.
	NotBefore *time.Time
	// NotAfter is the optional end of the activation window.
	NotAfter *time.Time
	// State is the initial lifecycle state; empty means ENABLED.
	State domain.State
	// Actor is the alias recorded as the creating or modifying user.
	Actor string
}

// MetadataUpdate replaces a version's mutable metadata. The value and user
// data are immutable; changing them means adding a version.
type MetadataUpdate struct {
	// State is the new lifecycle state.
	State domain.State
	// Comment replaces the stored comment.
	Comment string
	// NotBefore replaces the activation window start; nil clears it.
	NotBefore *time.Time
	// NotAfter replaces the activation window end; nil clears it.
	NotAfter *time.Time
	// Actor is the alias recorded as the modifying user.
	Actor string
}

// SecretManager is the consumer surface of one secrets group. Returned
// entries hold decrypted material; callers must Shred them after use.
type SecretManager interface {
	// CreateSecret creates a secret with version 1. A secret with any existing
	// version is a conflict.
	CreateSecret(ctx context.Context, id domain.SecretIdentifier, input SecretInput) (*domain.SecretEntry, error)

	// AddVersion appends a version numbered current max + 1.
	AddVersion(ctx context.Context, id domain.SecretIdentifier, input SecretInput) (*domain.SecretEntry, error)

	// GetLatest returns the highest version regardless of state or window.
	GetLatest(ctx context.Context, id domain.SecretIdentifier) (*domain.SecretEntry, error)

	// GetLatestActive returns the highest currently active version.
	GetLatestActive(ctx context.Context, id domain.SecretIdentifier) (*domain.SecretEntry, error)

	// GetActive returns the given version if it is currently active.
	GetActive(ctx context.Context, id domain.SecretIdentifier, version uint64) (*domain.SecretEntry, error)

	// GetAllActiveVersions returns all currently active versions, newest first.
	GetAllActiveVersions(ctx context.Context, id domain.SecretIdentifier) ([]*domain.SecretEntry, error)

	// GetAllVersions returns all versions regardless of state, newest first.
	GetAllVersions(ctx context.Context, id domain.SecretIdentifier) ([]*domain.SecretEntry, error)

	// UpdateMetadata replaces a version's state, comment and window, guarded
	// by the version's current payload digest.
	UpdateMetadata(ctx context.Context, id domain.SecretIdentifier, version uint64, update MetadataUpdate) (*domain.SecretEntry, error)

	// DeleteSecret removes all versions, returning the count removed.
	DeleteSecret(ctx context.Context, id domain.SecretIdentifier) (int, error)

	// ListIdentifiers returns the distinct secret identifiers, sorted.
	ListIdentifiers(ctx context.Context) ([]domain.SecretIdentifier, error)

	// GenerateRandomValue returns n secure random bytes from the encryption
	// service, for use as generated secret values.
	GenerateRandomValue(ctx context.Context, n int) ([]byte, error)
}
