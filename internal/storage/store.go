// Package storage defines the backend store contract for encrypted secret
// entries and the positional schema shared by all backends. Backends are
// treated as untrusted executors: every row they return is re-verified in
// process against the requested predicate.
package storage

import (
	"context"

	"github.com/allisson/strongroom/internal/query"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// Kind identifies a backend store implementation.
type Kind string

const (
	// KindMemory is the in-process map store.
	KindMemory Kind = "memory"
	// KindDynamoDB is the DynamoDB table store.
	KindDynamoDB Kind = "dynamodb"
	// KindFile is the encrypted single-file store.
	KindFile Kind = "file"
	// KindPostgreSQL is the PostgreSQL table store.
	KindPostgreSQL Kind = "postgresql"
)

// Filter is the predicate of a Stream call. Both conditions are optional: a
// key condition turns the call into an indexed lookup, an attribute condition
// alone turns it into a filtered scan, and an empty filter streams the whole
// store.
type Filter struct {
	Key  *query.KeyCondition
	Attr *query.Node
}

// Err returns the first construction error carried by the filter's conditions.
func (f *Filter) Err() error {
	if f.Key != nil {
		if err := f.Key.Err(); err != nil {
			return err
		}
	}
	if f.Attr != nil {
		return f.Attr.Err()
	}
	return nil
}

// QueryOptions shape a Stream result after predicate matching.
type QueryOptions struct {
	// Reverse returns entries in descending version order.
	Reverse bool
	// Distinct keeps only the first entry per secret name, in result order.
	Distinct bool
	// Limit caps the number of returned entries; zero means no cap.
	Limit int
}

// Store is one group's backend store of encrypted secret entries. Entries are
// immutable rows keyed by (name, version); updates are conditional on the
// stored payload digest.
type Store interface {
	// Kind returns the backend kind.
	Kind() Kind

	// Create provisions the physical store. An existing store is a conflict.
	Create(ctx context.Context) error

	// Destroy removes the physical store with all entries.
	Destroy(ctx context.Context) error

	// Exists reports whether the physical store exists.
	Exists(ctx context.Context) (bool, error)

	// ARN returns the identity of the physical store.
	ARN(ctx context.Context) (string, error)

	// CreateEntry inserts an entry if no row with the same (name, version)
	// exists, otherwise fails with ErrAlreadyExists.
	CreateEntry(ctx context.Context, entry *domain.RawSecretEntry) error

	// UpdateEntry replaces an entry's row if the stored digest equals
	// expectedDigest, otherwise fails with ErrConflict.
	UpdateEntry(ctx context.Context, entry *domain.RawSecretEntry, expectedDigest []byte) error

	// DeleteEntries removes all versions of a secret, returning the count.
	DeleteEntries(ctx context.Context, id domain.SecretIdentifier) (int, error)

	// KeySet returns the distinct secret identifiers in the store, sorted.
	KeySet(ctx context.Context) ([]domain.SecretIdentifier, error)

	// Stream returns the entries matching the filter, shaped by opts. Every
	// returned entry has been re-verified against the filter in process.
	Stream(ctx context.Context, filter *Filter, opts QueryOptions) ([]*domain.RawSecretEntry, error)

	// Close releases backend resources.
	Close() error
}
