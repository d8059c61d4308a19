package storage

import (
	"github.com/allisson/strongroom/internal/query"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

// Backend attribute positions. Rows are stored positionally so that attribute
// names leak nothing about their contents.
const (
	PosName      = "0"
	PosVersion   = "1"
	PosState     = "2"
	PosNotBefore = "3"
	PosNotAfter  = "4"
	PosPayload   = "5"
	PosDigest    = "6"
)

// EntrySchema is the explicit descriptor of the entry row layout. Each field
// is a typed attribute reference usable in query conditions; the descriptor is
// the single source of truth for how entries map to backend rows.
type EntrySchema struct {
	Name      query.Attribute
	Version   query.Attribute
	State     query.Attribute
	NotBefore query.Attribute
	NotAfter  query.Attribute
	Payload   query.Attribute
	Digest    query.Attribute
}

// Schema describes the entry row layout shared by all backends.
var Schema = EntrySchema{
	Name:      query.Attribute{Position: PosName, Name: "name", Type: query.TypeString, Role: query.RolePartitionKey},
	Version:   query.Attribute{Position: PosVersion, Name: "version", Type: query.TypeNumber, Role: query.RoleSortKey},
	State:     query.Attribute{Position: PosState, Name: "state", Type: query.TypeString, Role: query.RoleAttribute},
	NotBefore: query.Attribute{Position: PosNotBefore, Name: "notBefore", Type: query.TypeNumber, Role: query.RoleAttribute, Optional: true},
	NotAfter:  query.Attribute{Position: PosNotAfter, Name: "notAfter", Type: query.TypeNumber, Role: query.RoleAttribute, Optional: true},
	Payload:   query.Attribute{Position: PosPayload, Name: "payload", Type: query.TypeBytes, Role: query.RoleAttribute},
	Digest:    query.Attribute{Position: PosDigest, Name: "digest", Type: query.TypeBytes, Role: query.RoleAttribute},
}

// entryRecord adapts a RawSecretEntry to the positional view the evaluator
// consumes. No reflection: each position is resolved explicitly.
type entryRecord struct {
	entry *domain.RawSecretEntry
}

// RecordOf returns the positional view of an entry.
func RecordOf(entry *domain.RawSecretEntry) query.Record {
	return entryRecord{entry: entry}
}

// Attribute implements query.Record.
func (r entryRecord) Attribute(position string) (query.Value, bool) {
	switch position {
	case PosName:
		return query.StringValue(r.entry.Identifier.Name()), true
	case PosVersion:
		return query.NumberValue(int64(r.entry.Version)), true
	case PosState:
		digit, err := r.entry.State.Digit()
		if err != nil {
			return query.Value{}, false
		}
		return query.StringValue(string(digit)), true
	case PosNotBefore:
		if r.entry.NotBefore == nil {
			return query.Value{}, false
		}
		return query.NumberValue(r.entry.NotBefore.Unix()), true
	case PosNotAfter:
		if r.entry.NotAfter == nil {
			return query.Value{}, false
		}
		return query.NumberValue(r.entry.NotAfter.Unix()), true
	case PosPayload:
		return query.BytesValue(r.entry.EncryptedPayload), true
	case PosDigest:
		return query.BytesValue(r.entry.Digest()), true
	default:
		return query.Value{}, false
	}
}
