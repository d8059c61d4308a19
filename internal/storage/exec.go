package storage

import (
	"sort"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// finalize shapes a backend result set: it sorts entries into canonical
// (name, version) order, re-verifies every row against the filter, then
// applies reversal, distinct-per-name and the limit. A row the backend
// returned but the filter rejects is an integrity failure, never silently
// dropped.
func finalize(entries []*domain.RawSecretEntry, filter *Filter, opts QueryOptions) ([]*domain.RawSecretEntry, error) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Identifier.Name() != entries[j].Identifier.Name() {
			return entries[i].Identifier.Name() < entries[j].Identifier.Name()
		}
		return entries[i].Version < entries[j].Version
	})

	for _, entry := range entries {
		if err := verifyEntry(entry, filter); err != nil {
			return nil, err
		}
	}

	if opts.Reverse {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	if opts.Distinct {
		seen := make(map[string]struct{}, len(entries))
		distinct := entries[:0]
		for _, entry := range entries {
			name := entry.Identifier.Name()
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			distinct = append(distinct, entry)
		}
		entries = distinct
	}

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// verifyEntry checks one backend row against the requested predicate.
func verifyEntry(entry *domain.RawSecretEntry, filter *Filter) error {
	rec := RecordOf(entry)
	if filter.Key != nil && !filter.Key.Evaluate(rec) {
		return apperrors.Wrapf(apperrors.ErrIntegrity,
			"store returned entry %s v%d outside the requested key condition",
			entry.Identifier, entry.Version)
	}
	if filter.Attr != nil && !filter.Attr.Evaluate(rec) {
		return apperrors.Wrapf(apperrors.ErrIntegrity,
			"store returned entry %s v%d not matching the requested filter",
			entry.Identifier, entry.Version)
	}
	return nil
}
