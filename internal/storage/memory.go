package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// MemoryStore is an in-process Store for tests and ephemeral deployments.
// Entries are deep-copied on the way in and out.
type MemoryStore struct {
	name string

	mu      sync.RWMutex
	created bool
	entries map[string]map[uint64]*domain.RawSecretEntry
}

// NewMemoryStore creates an in-memory store for one group.
func NewMemoryStore(group domain.GroupIdentifier) *MemoryStore {
	return &MemoryStore{name: group.String()}
}

// Kind implements Store.
func (m *MemoryStore) Kind() Kind {
	return KindMemory
}

// Create implements Store.
func (m *MemoryStore) Create(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.created {
		return apperrors.Wrapf(apperrors.ErrAlreadyExists, "store %s", m.name)
	}
	m.created = true
	m.entries = make(map[string]map[uint64]*domain.RawSecretEntry)
	return nil
}

// Destroy implements Store.
func (m *MemoryStore) Destroy(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return apperrors.Wrapf(apperrors.ErrDoesNotExist, "store %s", m.name)
	}
	m.created = false
	m.entries = nil
	return nil
}

// Exists implements Store.
func (m *MemoryStore) Exists(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.created, nil
}

// ARN implements Store.
func (m *MemoryStore) ARN(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.created {
		return "", apperrors.Wrapf(apperrors.ErrDoesNotExist, "store %s", m.name)
	}
	return "memory/" + m.name, nil
}

// CreateEntry implements Store.
func (m *MemoryStore) CreateEntry(_ context.Context, entry *domain.RawSecretEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return apperrors.Wrapf(apperrors.ErrDoesNotExist, "store %s", m.name)
	}

	name := entry.Identifier.Name()
	versions := m.entries[name]
	if versions == nil {
		versions = make(map[uint64]*domain.RawSecretEntry)
		m.entries[name] = versions
	}
	if _, ok := versions[entry.Version]; ok {
		return apperrors.Wrapf(apperrors.ErrAlreadyExists,
			"entry %s v%d", entry.Identifier, entry.Version)
	}
	versions[entry.Version] = entry.Clone()
	return nil
}

// UpdateEntry implements Store.
func (m *MemoryStore) UpdateEntry(_ context.Context, entry *domain.RawSecretEntry, expectedDigest []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return apperrors.Wrapf(apperrors.ErrDoesNotExist, "store %s", m.name)
	}

	current, ok := m.entries[entry.Identifier.Name()][entry.Version]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrDoesNotExist,
			"entry %s v%d", entry.Identifier, entry.Version)
	}
	if !bytes.Equal(current.Digest(), expectedDigest) {
		return apperrors.Wrapf(apperrors.ErrConflict,
			"entry %s v%d was modified concurrently", entry.Identifier, entry.Version)
	}
	m.entries[entry.Identifier.Name()][entry.Version] = entry.Clone()
	return nil
}

// DeleteEntries implements Store.
func (m *MemoryStore) DeleteEntries(_ context.Context, id domain.SecretIdentifier) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return 0, apperrors.Wrapf(apperrors.ErrDoesNotExist, "store %s", m.name)
	}

	count := len(m.entries[id.Name()])
	delete(m.entries, id.Name())
	return count, nil
}

// KeySet implements Store.
func (m *MemoryStore) KeySet(context.Context) ([]domain.SecretIdentifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.created {
		return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "store %s", m.name)
	}

	names := make([]string, 0, len(m.entries))
	for name, versions := range m.entries {
		if len(versions) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	ids := make([]domain.SecretIdentifier, 0, len(names))
	for _, name := range names {
		id, err := domain.NewSecretIdentifier(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Stream implements Store.
func (m *MemoryStore) Stream(_ context.Context, filter *Filter, opts QueryOptions) ([]*domain.RawSecretEntry, error) {
	if err := filter.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.created {
		return nil, apperrors.Wrapf(apperrors.ErrDoesNotExist, "store %s", m.name)
	}

	var matched []*domain.RawSecretEntry
	for _, versions := range m.entries {
		for _, entry := range versions {
			rec := RecordOf(entry)
			if filter.Key != nil && !filter.Key.Evaluate(rec) {
				continue
			}
			if filter.Attr != nil && !filter.Attr.Evaluate(rec) {
				continue
			}
			matched = append(matched, entry.Clone())
		}
	}
	return finalize(matched, filter, opts)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
